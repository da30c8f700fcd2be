package tables

import (
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/google/uuid"
)

// SeatGroup holds the entries of one seat, or of the whole table for
// orders placed without a seat.
type SeatGroup struct {
	Key         string                 `json:"key"`
	SeatID      *uuid.UUID             `json:"seat_id,omitempty"`
	Label       string                 `json:"label"`
	Entries     []kitchen.RoutingEntry `json:"entries"`
	ArrivedAt   time.Time              `json:"arrived_at"`
	LateArrival bool                   `json:"late_arrival"`
}

// WholeTable reports whether the group collects orders without a seat.
func (s *SeatGroup) WholeTable() bool {
	return s.SeatID == nil
}

// TableGroup is the derived view of one table's entries. It is rebuilt
// from the ledger and never stored.
type TableGroup struct {
	TableID          kitchen.TableID `json:"table_id"`
	Label            string          `json:"label"`
	Seats            []SeatGroup     `json:"seats"`
	EarliestRoutedAt time.Time       `json:"earliest_routed_at"`
	MaxPriority      int             `json:"max_priority"`
	HasOverdueEntry  bool            `json:"has_overdue_entry"`
	OverallStatus    string          `json:"overall_status"`
}

// Entries flattens the seat groups.
func (g *TableGroup) Entries() []kitchen.RoutingEntry {
	var out []kitchen.RoutingEntry
	for _, s := range g.Seats {
		out = append(out, s.Entries...)
	}
	return out
}

// GroupChange is published on the table subject after a group is
// recomputed. Group is nil when the table no longer has entries.
type GroupChange struct {
	Type       string          `json:"type"`
	TableID    kitchen.TableID `json:"table_id"`
	Group      *TableGroup     `json:"group,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
