package app

import (
	"github.com/yungbote/plansync-backend/internal/http/middleware"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, serviceset Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: middleware.NewAuthMiddleware(log, serviceset.Verifier),
	}
}
