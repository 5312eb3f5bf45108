package http

import (
	"context"
	"net/http"
	"time"

	"support_router_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// OperatorRole is required on every /api/v1 route.
const OperatorRole = "operator"

// NewRouter builds the gin engine and lets every module register its routes.
func NewRouter(app *App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())

	engine.GET("/api/health", healthHandler(app.Health))

	webhookLimiter := httpkit.NewIPRateLimiter(rate.Limit(50), 100, app.Logger)
	webhooks := engine.Group("/webhooks")
	webhooks.Use(webhookLimiter.RateLimit())

	operator := engine.Group("/api/v1")
	if origins := app.Config.GetCORSOrigins(); len(origins) > 0 {
		operator.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", httpkit.HeaderRequestID},
			ExposeHeaders:    []string{httpkit.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	operator.Use(httpkit.AuthRequired(app.Config), httpkit.RequireRole(OperatorRole))

	rc := &RouterContext{
		Engine:   engine,
		Webhooks: webhooks,
		Operator: operator,
		Config:   app.Config,
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Info("module routes registered", "module", m.Name())
	}

	return engine
}

func healthHandler(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := gin.H{}
		for name, hc := range checks {
			if hc == nil {
				continue
			}
			if err := hc.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = "down"
				continue
			}
			result[name] = "ok"
		}
		body := gin.H{"status": "ok", "checks": result}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}
