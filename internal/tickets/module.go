package tickets

import (
	"context"

	"support_router_backend/internal/events"
	apphttp "support_router_backend/internal/http"
	"support_router_backend/platform/logger"
)

// Module is the tickets bounded context module implementing http.Module.
type Module struct {
	manager *Manager
	handler *Handler
}

// NewModule creates the ticket manager over store.
func NewModule(store Store, bus events.Bus, log *logger.Logger) *Module {
	manager := NewManager(store, bus, log)
	return &Module{
		manager: manager,
		handler: NewHandler(manager),
	}
}

// Manager exposes the lifecycle manager for the pipeline and webhooks.
func (m *Module) Manager() *Manager {
	return m.manager
}

// Start reloads OPEN tickets from the store.
func (m *Module) Start(ctx context.Context) (int, error) {
	return m.manager.Hydrate(ctx)
}

func (m *Module) Name() string {
	return "tickets"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Operator.Group("/tickets")
	g.GET("", m.handler.List)
	g.GET("/:id", m.handler.Get)
}

var _ apphttp.Module = (*Module)(nil)
