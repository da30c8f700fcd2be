package kitchen

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/entrystate"
	"github.com/appetiteclub/kds/pkg/enums/tablestatus"
)

// RoutingEntry is one order's lifecycle record at one station.
type RoutingEntry struct {
	ID          EntryID    `bson:"_id" json:"id"`
	OrderID     OrderID    `bson:"order_id" json:"order_id"`
	StationID   StationID  `bson:"station_id" json:"station_id"`
	TableID     TableID    `bson:"table_id" json:"table_id"`
	SeatID      *SeatID    `bson:"seat_id,omitempty" json:"seat_id,omitempty"`
	Items       []LineItem `bson:"items" json:"items"`
	RoutedAt    time.Time  `bson:"routed_at" json:"routed_at"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Priority    int        `bson:"priority" json:"priority"`
	RecallCount int        `bson:"recall_count" json:"recall_count"`
	Notes       string     `bson:"notes,omitempty" json:"notes,omitempty"`

	// Denormalized data for display purposes
	StationName string `bson:"station_name,omitempty" json:"station_name,omitempty"`
	TableLabel  string `bson:"table_label,omitempty" json:"table_label,omitempty"`
	SeatLabel   string `bson:"seat_label,omitempty" json:"seat_label,omitempty"`

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	Version   int       `bson:"version" json:"version"`
}

// State derives the lifecycle state from the timestamps.
func (e *RoutingEntry) State() entrystate.State {
	switch {
	case e.CompletedAt != nil:
		return entrystate.States.Done
	case e.StartedAt != nil:
		return entrystate.States.InProgress
	default:
		return entrystate.States.Queued
	}
}

// Active reports whether the entry still needs work.
func (e *RoutingEntry) Active() bool {
	return e.CompletedAt == nil
}

// Clone returns a deep copy safe to mutate independently.
func (e RoutingEntry) Clone() RoutingEntry {
	c := e
	if e.SeatID != nil {
		seat := *e.SeatID
		c.SeatID = &seat
	}
	if e.StartedAt != nil {
		t := *e.StartedAt
		c.StartedAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	if e.Items != nil {
		c.Items = make([]LineItem, len(e.Items))
		for i, item := range e.Items {
			c.Items[i] = item
			if item.Modifiers != nil {
				c.Items[i].Modifiers = append([]string(nil), item.Modifiers...)
			}
		}
	}
	return c
}

// Transition is a named move of the entry state machine.
type Transition string

const (
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionBump     Transition = "bump"
	TransitionRecall   Transition = "recall"
)

type transitionRule struct {
	from  []entrystate.State
	apply func(e *RoutingEntry, now time.Time)
}

var transitions = map[Transition]transitionRule{
	TransitionStart: {
		from: []entrystate.State{entrystate.States.Queued},
		apply: func(e *RoutingEntry, now time.Time) {
			e.StartedAt = &now
		},
	},
	TransitionComplete: {
		from: []entrystate.State{entrystate.States.InProgress},
		apply: func(e *RoutingEntry, now time.Time) {
			e.CompletedAt = completionTime(e, now)
		},
	},
	TransitionBump: {
		from: []entrystate.State{entrystate.States.Queued, entrystate.States.InProgress},
		apply: func(e *RoutingEntry, now time.Time) {
			e.CompletedAt = completionTime(e, now)
		},
	},
	TransitionRecall: {
		from: []entrystate.State{entrystate.States.Done},
		apply: func(e *RoutingEntry, now time.Time) {
			e.CompletedAt = nil
			e.StartedAt = &now
			e.RecallCount++
		},
	},
}

// completionTime never precedes StartedAt.
func completionTime(e *RoutingEntry, now time.Time) *time.Time {
	if e.StartedAt != nil && now.Before(*e.StartedAt) {
		t := *e.StartedAt
		return &t
	}
	return &now
}

// ParseTransition resolves a transition name.
func ParseTransition(name string) (Transition, error) {
	t := Transition(name)
	if _, ok := transitions[t]; !ok {
		return "", fmt.Errorf("%w: unknown transition %q", ErrValidation, name)
	}
	return t, nil
}

// Allowed reports whether t may be applied to an entry in state s.
func (t Transition) Allowed(s entrystate.State) bool {
	rule, ok := transitions[t]
	if !ok {
		return false
	}
	for _, from := range rule.from {
		if from == s {
			return true
		}
	}
	return false
}

// Apply moves the entry through t. A transition not allowed from the
// current state is a conflict and leaves the entry untouched.
func (e *RoutingEntry) Apply(t Transition, now time.Time) error {
	rule, ok := transitions[t]
	if !ok {
		return Errorf(string(t), e.ID.String(), ErrValidation, "unknown transition")
	}
	state := e.State()
	if !t.Allowed(state) {
		return Errorf(string(t), e.ID.String(), ErrConflict, "entry is %s", state.Label())
	}
	rule.apply(e, now)
	e.UpdatedAt = now
	e.Version++
	return nil
}

// Less orders entries for a station view: priority descending, then
// routedAt ascending, then ID so identical inputs always sort the same.
func Less(a, b *RoutingEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.RoutedAt.Equal(b.RoutedAt) {
		return a.RoutedAt.Before(b.RoutedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// SortForStation sorts entries in station display order.
func SortForStation(entries []RoutingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return Less(&entries[i], &entries[j])
	})
}

// DeriveStatus computes the overall status of a set of entries: ready
// when all are done, preparing when all are started, new when none is
// started, mixed otherwise.
func DeriveStatus(entries []RoutingEntry) tablestatus.Status {
	if len(entries) == 0 {
		return tablestatus.Statuses.New
	}
	done, started := 0, 0
	for i := range entries {
		if entries[i].CompletedAt != nil {
			done++
		}
		if entries[i].StartedAt != nil || entries[i].CompletedAt != nil {
			started++
		}
	}
	switch {
	case done == len(entries):
		return tablestatus.Statuses.Ready
	case started == len(entries):
		return tablestatus.Statuses.Preparing
	case started == 0:
		return tablestatus.Statuses.New
	default:
		return tablestatus.Statuses.Mixed
	}
}
