package app

import (
	"fmt"

	"github.com/yungbote/plansync-backend/internal/domain/plans"
	"github.com/yungbote/plansync-backend/internal/events"
	"github.com/yungbote/plansync-backend/internal/index"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/services"
)

type Services struct {
	Plan         services.PlanService
	Reconcile    services.ReconcileService
	Verifier     services.TokenVerifier
	Synchronizer *index.Synchronizer
	Consumer     *events.Consumer
}

func wireServices(log *logger.Logger, cfg Config, clients *Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")
	validator := plans.NewValidator()

	verifier, err := services.NewTokenVerifier(log, nil, cfg.Identity)
	if err != nil {
		return Services{}, fmt.Errorf("init token verifier: %w", err)
	}

	publisher := events.NewPublisher(log, clients.Stream)
	synchronizer := index.NewSynchronizer(log, clients.Index, validator)
	consumer := events.NewConsumer(log, clients.Stream, synchronizer, events.ConsumerConfig{
		MaxDeliveries: cfg.Events.MaxDeliveries,
		Permanent:     index.IsPermanent,
	})

	return Services{
		Plan:         services.NewPlanService(log, reposet.Plans, publisher, validator),
		Reconcile:    services.NewReconcileService(log, reposet.Plans, synchronizer, cfg.ReindexConcurrency),
		Verifier:     verifier,
		Synchronizer: synchronizer,
		Consumer:     consumer,
	}, nil
}
