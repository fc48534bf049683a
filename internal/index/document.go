// Package index keeps the searchable projection of plans in step with the
// primary store. A plan is flattened into a small tree of documents joined
// parent to child; deleting a plan removes the whole tree, leaves first.
package index

import (
	"context"
	"errors"
)

type Relation string

const (
	RelPlan                  Relation = "plan"
	RelPlanCostShares        Relation = "planCostShares"
	RelLinkedPlanServices    Relation = "linkedPlanServices"
	RelLinkedService         Relation = "linkedService"
	RelPlanserviceCostShares Relation = "planserviceCostShares"
)

// Relations maps each parent relation to the relations that may hang off it.
var Relations = map[Relation][]Relation{
	RelPlan:               {RelPlanCostShares, RelLinkedPlanServices},
	RelLinkedPlanServices: {RelLinkedService, RelPlanserviceCostShares},
}

// IsContainer reports whether documents of r can have children.
func (r Relation) IsContainer() bool { return len(Relations[r]) > 0 }

var (
	// ErrUnavailable wraps failures talking to the index. Retrying may help.
	ErrUnavailable = errors.New("index: unavailable")
	// ErrInvalidRecord marks records that cannot be projected. Retrying never helps.
	ErrInvalidRecord = errors.New("index: record cannot be projected")
	// ErrRejected marks documents the index refused for a non-transient reason.
	ErrRejected = errors.New("index: document rejected")
)

// Document is one node of the projected tree. Parent is empty for roots.
type Document struct {
	ID       string
	Relation Relation
	Parent   string
	Routing  string
	Body     map[string]any
}

// Hit addresses a stored document.
type Hit struct {
	ID       string
	Relation Relation
	Routing  string
}

func (d Document) Hit() Hit { return Hit{ID: d.ID, Relation: d.Relation, Routing: d.Routing} }

// Backend is the storage a Synchronizer drives. Put is an upsert; Delete of
// a missing document is not an error.
type Backend interface {
	Name() string
	EnsureSchema(ctx context.Context) error
	Put(ctx context.Context, doc Document) error
	Children(ctx context.Context, parent Hit) ([]Hit, error)
	Delete(ctx context.Context, hit Hit) error
	Close(ctx context.Context) error
}
