package webhook

import (
	"net/http"

	"support_router_backend/platform/httpkit"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"

	sourceWhatsApp = "whatsapp"
	sourceTickets  = "tickets"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service     *Service
	val         *validator.Validator
	verifyToken string
	log         *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator, verifyToken string, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, verifyToken: verifyToken, log: log}
}

// HandleVerify answers the subscription handshake.
// GET /webhooks/whatsapp
func (h *Handler) HandleVerify(c *gin.Context) {
	if c.Query("hub.mode") != "subscribe" || h.verifyToken == "" || c.Query("hub.verify_token") != h.verifyToken {
		h.log.WebhookRejected(sourceWhatsApp, "verify token mismatch", c.ClientIP())
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// HandleInbound accepts a signed message delivery.
// POST /webhooks/whatsapp
func (h *Handler) HandleInbound(c *gin.Context) {
	var env Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		h.log.WebhookRejected(sourceWhatsApp, "malformed payload", c.ClientIP())
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), env)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// HandleTicketAnswer applies a human answer.
// POST /webhooks/tickets/answer
func (h *Handler) HandleTicketAnswer(c *gin.Context) {
	var req TicketAnswerRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	outcome, err := h.service.AnswerTicket(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Status(c, string(outcome))
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.log.WebhookRejected(sourceTickets, "malformed payload", c.ClientIP())
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, validator.Describe(err))
		return false
	}
	return true
}
