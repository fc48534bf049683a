package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/plansync-backend/internal/http/handlers"
	httpMW "github.com/yungbote/plansync-backend/internal/http/middleware"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware
	PlanHandler    *httpH.PlanHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log.With("component", "HTTP")))
	}
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	protected := r.Group("/api/v1")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Plans
		if cfg.PlanHandler != nil {
			protected.POST("/plan", cfg.PlanHandler.CreatePlan)
			protected.GET("/plan/:id", cfg.PlanHandler.GetPlan)
			protected.PATCH("/plan/:id", cfg.PlanHandler.PatchPlan)
			protected.DELETE("/plan/:id", cfg.PlanHandler.DeletePlan)
		}
	}

	return r
}
