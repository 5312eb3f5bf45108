package knowledge

import (
	apphttp "support_router_backend/internal/http"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/validator"
)

// Module exposes operator ingestion into the knowledge store.
type Module struct {
	handler *Handler
}

func NewModule(adder Adder, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(adder, val, log)}
}

func (m *Module) Name() string {
	return "knowledge"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Operator.POST("/knowledge", m.handler.Seed)
}

var _ apphttp.Module = (*Module)(nil)
