package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/plansync-backend/internal/data/repos"
	"github.com/yungbote/plansync-backend/internal/domain/plans"
	"github.com/yungbote/plansync-backend/internal/events"
	"github.com/yungbote/plansync-backend/internal/observability"
	"github.com/yungbote/plansync-backend/internal/pkg/httpx"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/record"
)

type WriteResult struct {
	ObjectID    string
	Record      record.Object
	Fingerprint string
}

type ReadResult struct {
	Record      record.Object
	Fingerprint string
	NotModified bool
}

// PlanService guards plan mutations with content fingerprints and emits one
// event per confirmed write. ifMatch / ifNoneMatch take raw header values.
type PlanService interface {
	Create(ctx context.Context, candidate record.Value) (*WriteResult, error)
	Read(ctx context.Context, id, ifNoneMatch string) (*ReadResult, error)
	Update(ctx context.Context, id, ifMatch string, patch record.Value) (*WriteResult, error)
	Delete(ctx context.Context, id string) error
}

type planService struct {
	store     repos.PlanStore
	publisher events.Publisher
	validator *plans.Validator
	log       *logger.Logger
}

func NewPlanService(log *logger.Logger, store repos.PlanStore, publisher events.Publisher, validator *plans.Validator) PlanService {
	return &planService{
		store:     store,
		publisher: publisher,
		validator: validator,
		log:       log.With("service", "PlanService"),
	}
}

func (s *planService) Create(ctx context.Context, candidate record.Value) (_ *WriteResult, err error) {
	ctx, end := observability.StartSpan(ctx, "plans.Create")
	defer func() { end(err) }()

	if err := s.validator.ValidatePlan(candidate); err != nil {
		return nil, invalidShape(err)
	}
	rec := record.Clone(candidate).(record.Object)
	id := record.ID(rec)
	fp, err := record.Fingerprint(rec)
	if err != nil {
		return nil, invalidShape(err)
	}

	_, err = s.store.Update(ctx, id, func(cur record.Object, exists bool) (record.Object, error) {
		if !exists {
			return rec, nil
		}
		curFP, err := record.Fingerprint(cur)
		if err != nil {
			return nil, err
		}
		if curFP == fp {
			return nil, ErrDuplicateContent
		}
		return rec, nil
	})
	if err != nil {
		return nil, storeErr("create plan", err)
	}

	s.publish(ctx, events.Event{Kind: events.KindCreate, Record: rec, ObjectID: id})
	s.log.Info("plan created", "object_id", id, "fingerprint", fp)
	return &WriteResult{ObjectID: id, Record: rec, Fingerprint: fp}, nil
}

func (s *planService) Read(ctx context.Context, id, ifNoneMatch string) (_ *ReadResult, err error) {
	ctx, end := observability.StartSpan(ctx, "plans.Read", attribute.String("plan.id", id))
	defer func() { end(err) }()

	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr("read plan", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	fp, err := record.Fingerprint(rec)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", id, err)
	}
	if httpx.ParseETags(ifNoneMatch).Matches(fp) {
		return &ReadResult{Fingerprint: fp, NotModified: true}, nil
	}
	return &ReadResult{Record: rec, Fingerprint: fp}, nil
}

func (s *planService) Update(ctx context.Context, id, ifMatch string, patch record.Value) (_ *WriteResult, err error) {
	ctx, end := observability.StartSpan(ctx, "plans.Update", attribute.String("plan.id", id))
	defer func() { end(err) }()

	want := httpx.ParseETags(ifMatch)
	if want.Empty() {
		return nil, ErrPreconditionMissing
	}

	var fp string
	merged, err := s.store.Update(ctx, id, func(cur record.Object, exists bool) (record.Object, error) {
		if !exists {
			return nil, ErrNotFound
		}
		curFP, err := record.Fingerprint(cur)
		if err != nil {
			return nil, err
		}
		if !want.Matches(curFP) {
			return nil, ErrPreconditionFailed
		}
		if err := s.validator.ValidatePatch(patch); err != nil {
			return nil, invalidShape(err)
		}
		if pid := record.ID(patch); pid != "" && pid != id {
			return nil, invalidField(record.IDField, "eq", id)
		}
		next, ok := record.Merge(cur, patch).(record.Object)
		if !ok {
			return nil, invalidField("$", "object", "")
		}
		if err := s.validator.ValidatePlan(next); err != nil {
			return nil, invalidShape(err)
		}
		fp, err = record.Fingerprint(next)
		if err != nil {
			return nil, invalidShape(err)
		}
		return next, nil
	})
	if err != nil {
		return nil, storeErr("update plan", err)
	}

	s.publish(ctx, events.Event{Kind: events.KindUpdate, Record: merged, ObjectID: id})
	s.log.Info("plan updated", "object_id", id, "fingerprint", fp)
	return &WriteResult{ObjectID: id, Record: merged, Fingerprint: fp}, nil
}

func (s *planService) Delete(ctx context.Context, id string) (err error) {
	ctx, end := observability.StartSpan(ctx, "plans.Delete", attribute.String("plan.id", id))
	defer func() { end(err) }()

	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return storeErr("delete plan", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.publish(ctx, events.Event{Kind: events.KindDelete, ObjectID: id})
	s.log.Info("plan deleted", "object_id", id)
	return nil
}

// publish runs after the primary write is confirmed. A failure leaves the
// index stale until the next reindex sweep; the mutation still stands.
func (s *planService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Error("event publish failed after confirmed write; index will lag",
			"object_id", e.Key(),
			"kind", e.Kind,
			"error", fmt.Errorf("%w: %v", ErrQueueUnavailable, err),
		)
	}
}
