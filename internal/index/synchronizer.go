package index

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/plansync-backend/internal/domain/plans"
	"github.com/yungbote/plansync-backend/internal/observability"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/record"
)

// Synchronizer writes and removes plan document trees. Every operation is
// idempotent, so replaying an event after a partial failure converges.
type Synchronizer struct {
	backend   Backend
	validator *plans.Validator
	log       *logger.Logger
}

func NewSynchronizer(log *logger.Logger, backend Backend, validator *plans.Validator) *Synchronizer {
	return &Synchronizer{
		backend:   backend,
		validator: validator,
		log:       log.With("service", "IndexSynchronizer", "backend", backend.Name()),
	}
}

// Index upserts every document of the plan, parent before children.
func (s *Synchronizer) Index(ctx context.Context, rec record.Object) (err error) {
	ctx, end := observability.StartSpan(ctx, "index.Index", attribute.String("plan.id", record.ID(rec)))
	defer func() { end(err) }()
	return s.index(ctx, rec)
}

func (s *Synchronizer) index(ctx context.Context, rec record.Object) error {
	p, err := s.validator.Decode(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	docs := Project(p)
	for _, d := range docs {
		if err := s.backend.Put(ctx, d); err != nil {
			return fmt.Errorf("put %s %s: %w", d.Relation, d.ID, err)
		}
	}
	s.log.Debug("plan indexed", "object_id", p.ObjectID, "documents", len(docs))
	return nil
}

// Reindex replaces the plan's tree: the old tree is removed first so
// sub-entities dropped by an update do not linger.
func (s *Synchronizer) Reindex(ctx context.Context, rec record.Object) (err error) {
	id := record.ID(rec)
	ctx, end := observability.StartSpan(ctx, "index.Reindex", attribute.String("plan.id", id))
	defer func() { end(err) }()
	if id == "" {
		return fmt.Errorf("%w: missing objectId", ErrInvalidRecord)
	}
	if _, err := s.validator.Decode(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := s.deleteTree(ctx, s.root(id)); err != nil {
		return err
	}
	return s.index(ctx, rec)
}

// Delete removes the plan document and everything beneath it. Deleting a
// plan that was never indexed succeeds.
func (s *Synchronizer) Delete(ctx context.Context, objectID string) (err error) {
	ctx, end := observability.StartSpan(ctx, "index.Delete", attribute.String("plan.id", objectID))
	defer func() { end(err) }()
	if objectID == "" {
		return fmt.Errorf("%w: missing objectId", ErrInvalidRecord)
	}
	if err := s.deleteTree(ctx, s.root(objectID)); err != nil {
		return err
	}
	s.log.Debug("plan removed from index", "object_id", objectID)
	return nil
}

func (s *Synchronizer) root(id string) Hit {
	return Hit{ID: id, Relation: RelPlan, Routing: id}
}

func (s *Synchronizer) deleteTree(ctx context.Context, h Hit) error {
	if h.Relation.IsContainer() {
		children, err := s.backend.Children(ctx, h)
		if err != nil {
			return fmt.Errorf("children of %s %s: %w", h.Relation, h.ID, err)
		}
		for _, c := range children {
			if err := s.deleteTree(ctx, c); err != nil {
				return err
			}
		}
	}
	if err := s.backend.Delete(ctx, h); err != nil {
		return fmt.Errorf("delete %s %s: %w", h.Relation, h.ID, err)
	}
	return nil
}

// IsPermanent reports whether err will recur on every retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRecord) || errors.Is(err, ErrRejected)
}
