package tickets

import (
	"strings"

	"support_router_backend/platform/apperr"
	"support_router_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler serves the operator ticket views.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// List handles GET /api/v1/tickets?status=open|answered.
func (h *Handler) List(c *gin.Context) {
	var status Status
	switch strings.ToLower(strings.TrimSpace(c.Query("status"))) {
	case "":
	case "open":
		status = StatusOpen
	case "answered":
		status = StatusAnswered
	default:
		httpkit.HandleError(c, apperr.Validation("status must be open or answered"))
		return
	}
	httpkit.OK(c, gin.H{"items": h.manager.List(status)})
}

// Get handles GET /api/v1/tickets/:id.
func (h *Handler) Get(c *gin.Context) {
	t, ok := h.manager.Get(c.Param("id"))
	if !ok {
		httpkit.HandleError(c, apperr.NotFound("ticket not found"))
		return
	}
	httpkit.OK(c, t)
}
