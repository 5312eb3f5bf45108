// Package webhook is the ingress for WhatsApp deliveries and helpdesk
// ticket answers.
package webhook

import (
	apphttp "support_router_backend/internal/http"
	"support_router_backend/platform/config"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/validator"
)

// Config is what the webhook module needs from configuration.
type Config interface {
	config.ChannelConfig
	config.TicketWebhookConfig
}

// Module is the webhook module implementing http.Module.
type Module struct {
	handler      *Handler
	appSecret    string
	ticketSecret string
	log          *logger.Logger
}

// NewModule wires the webhook service and handler.
func NewModule(cfg Config, ingestor Ingestor, resolver Resolver, pending PendingStore, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(ingestor, resolver, pending, cfg.GetWhatsAppBusinessNumber(), cfg.GetDefaultPhoneRegion(), log)
	return &Module{
		handler:      NewHandler(service, val, cfg.GetWhatsAppVerifyToken(), log),
		appSecret:    cfg.GetWhatsAppAppSecret(),
		ticketSecret: cfg.GetTicketWebhookSecret(),
		log:          log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the public, signature-authenticated routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.GET("/whatsapp", m.handler.HandleVerify)
	ctx.Webhooks.POST("/whatsapp",
		SignatureRequired(sourceWhatsApp, HeaderHubSignature, m.appSecret, m.log),
		m.handler.HandleInbound)
	ctx.Webhooks.POST("/tickets/answer",
		SignatureRequired(sourceTickets, HeaderTicketSignature, m.ticketSecret, m.log),
		m.handler.HandleTicketAnswer)
}
