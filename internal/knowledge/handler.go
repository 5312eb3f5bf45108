package knowledge

import (
	"context"
	"net/http"

	"support_router_backend/platform/httpkit"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/sanitize"
	"support_router_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Adder stores operator-supplied documents.
type Adder interface {
	Add(ctx context.Context, question, answer string) (string, error)
}

// SeedDocument is one question/answer pair loaded by an operator.
type SeedDocument struct {
	Question string `json:"question" validate:"required,notblank,max=2000"`
	Answer   string `json:"answer" validate:"required,notblank,max=4096"`
}

// SeedRequest is the body of POST /api/v1/knowledge.
type SeedRequest struct {
	Documents []SeedDocument `json:"documents" validate:"required,min=1,max=100,dive"`
}

// SeedResponse lists the stored document ids in request order.
type SeedResponse struct {
	IDs []string `json:"ids"`
}

// Handler serves operator knowledge ingestion.
type Handler struct {
	adder Adder
	val   *validator.Validator
	log   *logger.Logger
}

func NewHandler(adder Adder, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{adder: adder, val: val, log: log}
}

// Seed handles POST /api/v1/knowledge. Documents are written in order and
// the first failure stops the batch.
func (h *Handler) Seed(c *gin.Context) {
	var req SeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.Describe(err))
		return
	}

	ids := make([]string, 0, len(req.Documents))
	for _, doc := range req.Documents {
		question := sanitize.Text(sanitize.StripHTML(doc.Question))
		answer := sanitize.Text(sanitize.StripHTML(doc.Answer))
		if question == "" || answer == "" {
			httpkit.Error(c, http.StatusBadRequest, "document is empty after cleaning", SeedResponse{IDs: ids})
			return
		}
		id, err := h.adder.Add(c.Request.Context(), question, answer)
		if err != nil {
			h.log.Error("knowledge seed stopped", "stored", ids, "error", err)
			httpkit.HandleError(c, err)
			return
		}
		ids = append(ids, id)
	}

	h.log.Info("knowledge seeded", "count", len(ids))
	c.JSON(http.StatusCreated, SeedResponse{IDs: ids})
}
