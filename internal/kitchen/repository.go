package kitchen

import (
	"context"
	"time"
)

// EntryFilter selects routing entries. Zero fields do not filter.
type EntryFilter struct {
	StationID *StationID
	TableID   *TableID
	OrderID   *OrderID
	TableIDs  []TableID
	// Active keeps entries that are not done, plus done entries completed
	// at or after DoneSince when it is set.
	Active    bool
	DoneSince *time.Time
	// Ready keeps only done entries, completed at or after DoneSince when
	// it is set.
	Ready bool
	Limit int
}

// Matches applies the filter to one entry. Stores use it for in-memory
// evaluation and tests.
func (f EntryFilter) Matches(e *RoutingEntry) bool {
	if f.StationID != nil && e.StationID != *f.StationID {
		return false
	}
	if f.TableID != nil && e.TableID != *f.TableID {
		return false
	}
	if f.OrderID != nil && e.OrderID != *f.OrderID {
		return false
	}
	if len(f.TableIDs) > 0 {
		found := false
		for _, id := range f.TableIDs {
			if e.TableID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Ready {
		if e.CompletedAt == nil || (f.DoneSince != nil && e.CompletedAt.Before(*f.DoneSince)) {
			return false
		}
	}
	if f.Active && e.CompletedAt != nil {
		if f.DoneSince == nil || e.CompletedAt.Before(*f.DoneSince) {
			return false
		}
	}
	return true
}

type StationRepository interface {
	Create(ctx context.Context, s *Station) error
	Update(ctx context.Context, s *Station) error
	FindByID(ctx context.Context, id StationID) (*Station, error)
	List(ctx context.Context) ([]Station, error)
}

type OrderRepository interface {
	// Record stores the order and its routing entries in one atomic step.
	// An order ID already recorded is a conflict.
	Record(ctx context.Context, o *Order, entries []RoutingEntry) error
	FindByID(ctx context.Context, id OrderID) (*Order, error)
}

type EntryRepository interface {
	// Update stores e if the stored version still equals expectedVersion,
	// otherwise it fails with ErrConflict.
	Update(ctx context.Context, e *RoutingEntry, expectedVersion int) error
	// UpdateMany stores every entry or none. expected maps entry IDs to
	// the versions they must still have.
	UpdateMany(ctx context.Context, entries []RoutingEntry, expected map[EntryID]int) error
	FindByID(ctx context.Context, id EntryID) (*RoutingEntry, error)
	List(ctx context.Context, filter EntryFilter) ([]RoutingEntry, error)
}
