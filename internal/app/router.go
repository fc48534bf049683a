package app

import (
	apphttp "github.com/yungbote/plansync-backend/internal/http"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, handlerset Handlers, mw Middleware) *apphttp.Server {
	return apphttp.NewServer(":"+cfg.Port, apphttp.RouterConfig{
		Log:            log,
		ServiceName:    cfg.Otel.ServiceName,
		CORSOrigins:    cfg.CORSOrigins,
		AuthMiddleware: mw.Auth,
		PlanHandler:    handlerset.Plan,
		HealthHandler:  handlerset.Health,
	})
}
