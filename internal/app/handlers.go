package app

import (
	"context"

	"github.com/yungbote/plansync-backend/internal/http/handlers"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type Handlers struct {
	Plan   *handlers.PlanHandler
	Health *handlers.HealthHandler
}

func wireHandlers(log *logger.Logger, serviceset Services, clients *Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Plan: handlers.NewPlanHandler(serviceset.Plan),
		Health: handlers.NewHealthHandler(map[string]handlers.Check{
			"redis": func(ctx context.Context) error { return clients.Redis.Ping(ctx).Err() },
		}),
	}
}
