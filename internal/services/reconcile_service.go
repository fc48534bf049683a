package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/plansync-backend/internal/data/repos"
	"github.com/yungbote/plansync-backend/internal/events"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type ReindexReport struct {
	Scanned int64
	Indexed int64
	Failed  int64
}

// ReconcileService rebuilds the index from the primary store. It repairs
// drift left by lost or dead-lettered events.
type ReconcileService interface {
	ReindexAll(ctx context.Context) (ReindexReport, error)
	ReindexOne(ctx context.Context, id string) error
}

type reconcileService struct {
	store       repos.PlanStore
	sync        events.Synchronizer
	concurrency int
	log         *logger.Logger
}

func NewReconcileService(log *logger.Logger, store repos.PlanStore, sync events.Synchronizer, concurrency int) ReconcileService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &reconcileService{
		store:       store,
		sync:        sync,
		concurrency: concurrency,
		log:         log.With("service", "ReconcileService"),
	}
}

// ReindexAll is best effort: a plan that fails is logged and counted and the
// sweep moves on. Only a failure to scan the store aborts it.
func (s *reconcileService) ReindexAll(ctx context.Context) (ReindexReport, error) {
	var scanned, indexed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	s.log.Info("Reindex sweep started", "concurrency", s.concurrency)
	scanErr := s.store.ScanIDs(gctx, func(id string) error {
		scanned.Add(1)
		g.Go(func() error {
			if err := s.ReindexOne(gctx, id); err != nil {
				failed.Add(1)
				s.log.Warn("reindex failed", "object_id", id, "error", err)
				return nil
			}
			indexed.Add(1)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	report := ReindexReport{Scanned: scanned.Load(), Indexed: indexed.Load(), Failed: failed.Load()}
	if scanErr != nil {
		return report, storeErr("scan plans", scanErr)
	}
	s.log.Info("Reindex sweep finished", "scanned", report.Scanned, "indexed", report.Indexed, "failed", report.Failed)
	return report, nil
}

func (s *reconcileService) ReindexOne(ctx context.Context, id string) error {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return storeErr("read plan", err)
	}
	if !ok {
		// Gone from the store: make sure the index agrees.
		if err := s.sync.Delete(ctx, id); err != nil {
			return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
		return nil
	}
	if err := s.sync.Reindex(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}
