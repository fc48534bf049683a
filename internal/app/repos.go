package app

import (
	"github.com/yungbote/plansync-backend/internal/data/repos"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type Repos struct {
	Plans repos.PlanStore
}

func wireRepos(log *logger.Logger, cfg Config, clients *Clients) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Plans: repos.NewRedisPlanStore(log, clients.Redis, cfg.PlanKeyPrefix),
	}
}
