package http

import (
	"context"

	"support_router_backend/platform/config"
	"support_router_backend/platform/logger"
)

// RouterConfig is what NewRouter reads: listen/CORS settings and the
// operator JWT secret.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker is pinged by /api/health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by cmd/api and handed to NewRouter.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  map[string]HealthChecker
	Modules []Module
}
