package conversation

import (
	"net/http"

	"support_router_backend/platform/apperr"
	"support_router_backend/platform/httpkit"
	"support_router_backend/platform/phone"

	"github.com/gin-gonic/gin"
)

// Handler serves the operator conversation view.
type Handler struct {
	store  Store
	region string
}

func NewHandler(store Store, region string) *Handler {
	return &Handler{store: store, region: region}
}

// Get handles GET /api/v1/conversations/:key.
func (h *Handler) Get(c *gin.Context) {
	key := phone.NormalizeWAID(c.Param("key"), h.region)
	if key == "" {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation key", nil)
		return
	}

	conv, err := h.store.Get(c.Request.Context(), key)
	if httpkit.HandleError(c, err) {
		return
	}
	if conv.Stage == StageNew && len(conv.Turns) == 0 {
		httpkit.HandleError(c, apperr.NotFound("conversation not found"))
		return
	}
	httpkit.OK(c, conv)
}
