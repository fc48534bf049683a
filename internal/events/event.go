// Package events carries plan mutations from the API to the index. Every
// confirmed write to the primary store produces one Event on an ordered
// stream; a single consumer replays them, in order, into the index.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/plansync-backend/internal/record"
)

type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// ErrMalformed marks payloads that can never be processed.
var ErrMalformed = errors.New("events: malformed event")

type Event struct {
	Kind       Kind
	Record     record.Object
	ObjectID   string
	OccurredAt time.Time
}

// wire keeps the field names the index workers have always consumed:
// {"action", "plan", "planId"}.
type wire struct {
	Action     Kind            `json:"action"`
	Plan       json.RawMessage `json:"plan,omitempty"`
	PlanID     string          `json:"planId,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func Encode(e Event) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	w := wire{Action: e.Kind, PlanID: e.ObjectID, OccurredAt: e.OccurredAt.UTC()}
	if e.Record != nil {
		raw, err := record.MarshalCanonical(e.Record)
		if err != nil {
			return nil, fmt.Errorf("encode event record: %w", err)
		}
		w.Plan = raw
	}
	return json.Marshal(w)
}

func Decode(body []byte) (Event, error) {
	var w wire
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	e := Event{Kind: w.Action, ObjectID: w.PlanID, OccurredAt: w.OccurredAt}
	if len(w.Plan) > 0 && string(w.Plan) != "null" {
		obj, err := record.ParseObject(w.Plan)
		if err != nil {
			return Event{}, fmt.Errorf("%w: plan: %v", ErrMalformed, err)
		}
		e.Record = obj
	}
	if e.ObjectID == "" && e.Record != nil {
		e.ObjectID = record.ID(e.Record)
	}
	if err := e.validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (e Event) validate() error {
	switch e.Kind {
	case KindCreate, KindUpdate:
		if e.Record == nil || record.ID(e.Record) == "" {
			return fmt.Errorf("%w: %s event needs a record with an objectId", ErrMalformed, e.Kind)
		}
	case KindDelete:
		if e.ObjectID == "" {
			return fmt.Errorf("%w: delete event needs an objectId", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, e.Kind)
	}
	return nil
}

// Key is the record the event is about. Partitioned streams use it to keep
// per-record ordering.
func (e Event) Key() string {
	if e.ObjectID != "" {
		return e.ObjectID
	}
	return record.ID(e.Record)
}
