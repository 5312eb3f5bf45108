package conversation

import (
	apphttp "support_router_backend/internal/http"
)

// Module exposes conversations to operators.
type Module struct {
	handler *Handler
}

func NewModule(store Store, region string) *Module {
	return &Module{handler: NewHandler(store, region)}
}

func (m *Module) Name() string {
	return "conversations"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Operator.GET("/conversations/:key", m.handler.Get)
}
