package tables

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
)

const (
	DefaultOverdueAfter = 10 * time.Minute
	DefaultRetention    = 2 * time.Minute

	wholeTableLabel = "Table"
)

// Aggregator derives table groups from routing entries. It remembers the
// earliest routedAt it observed for each table so seats arriving later
// are flagged as late arrivals.
type Aggregator struct {
	overdue   time.Duration
	retention time.Duration

	mu       sync.Mutex
	observed map[kitchen.TableID]time.Time
}

func NewAggregator(overdue, retention time.Duration) *Aggregator {
	if overdue <= 0 {
		overdue = DefaultOverdueAfter
	}
	if retention < 0 {
		retention = 0
	}
	return &Aggregator{
		overdue:   overdue,
		retention: retention,
		observed:  make(map[kitchen.TableID]time.Time),
	}
}

// Build treats entries as the complete current set: tables missing from
// it are forgotten. Groups are ordered by earliest routedAt.
func (a *Aggregator) Build(entries []kitchen.RoutingEntry, now time.Time) []TableGroup {
	byTable := a.partition(entries, now)

	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.observed {
		if _, ok := byTable[id]; !ok {
			delete(a.observed, id)
		}
	}

	groups := make([]TableGroup, 0, len(byTable))
	for id, list := range byTable {
		groups = append(groups, a.buildLocked(id, list, now))
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].EarliestRoutedAt.Equal(groups[j].EarliestRoutedAt) {
			return groups[i].EarliestRoutedAt.Before(groups[j].EarliestRoutedAt)
		}
		return groups[i].TableID.String() < groups[j].TableID.String()
	})
	return groups
}

// BuildTable rebuilds one table from its entries. It reports false, and
// forgets the table, when nothing is left to show.
func (a *Aggregator) BuildTable(tableID kitchen.TableID, entries []kitchen.RoutingEntry, now time.Time) (*TableGroup, bool) {
	list := a.partition(entries, now)[tableID]

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(list) == 0 {
		delete(a.observed, tableID)
		return nil, false
	}
	g := a.buildLocked(tableID, list, now)
	return &g, true
}

// Observed returns the remembered earliest routedAt of a table.
func (a *Aggregator) Observed(tableID kitchen.TableID) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.observed[tableID]
	return t, ok
}

// partition drops done entries past retention and groups by table.
func (a *Aggregator) partition(entries []kitchen.RoutingEntry, now time.Time) map[kitchen.TableID][]kitchen.RoutingEntry {
	cutoff := now.Add(-a.retention)
	byTable := make(map[kitchen.TableID][]kitchen.RoutingEntry)
	for _, e := range entries {
		if e.CompletedAt != nil && e.CompletedAt.Before(cutoff) {
			continue
		}
		byTable[e.TableID] = append(byTable[e.TableID], e)
	}
	return byTable
}

func (a *Aggregator) buildLocked(tableID kitchen.TableID, entries []kitchen.RoutingEntry, now time.Time) TableGroup {
	g := TableGroup{TableID: tableID, MaxPriority: entries[0].Priority}
	overdueBefore := now.Add(-a.overdue)

	seats := make(map[string]*SeatGroup)
	for _, e := range entries {
		if g.Label == "" && e.TableLabel != "" {
			g.Label = e.TableLabel
		}
		if g.EarliestRoutedAt.IsZero() || e.RoutedAt.Before(g.EarliestRoutedAt) {
			g.EarliestRoutedAt = e.RoutedAt
		}
		if e.Priority > g.MaxPriority {
			g.MaxPriority = e.Priority
		}
		if e.Active() && e.RoutedAt.Before(overdueBefore) {
			g.HasOverdueEntry = true
		}

		key := seatKey(e)
		seat, ok := seats[key]
		if !ok {
			seat = &SeatGroup{Key: key, Label: wholeTableLabel, ArrivedAt: e.RoutedAt}
			if e.SeatID != nil {
				id := *e.SeatID
				seat.SeatID = &id
				seat.Label = e.SeatLabel
				if seat.Label == "" {
					seat.Label = id.String()[:8]
				}
			}
			seats[key] = seat
		}
		if e.RoutedAt.Before(seat.ArrivedAt) {
			seat.ArrivedAt = e.RoutedAt
		}
		seat.Entries = append(seat.Entries, e)
	}

	observed, seen := a.observed[tableID]
	if !seen || g.EarliestRoutedAt.Before(observed) {
		observed = g.EarliestRoutedAt
		a.observed[tableID] = observed
	}

	g.Seats = make([]SeatGroup, 0, len(seats))
	for _, seat := range seats {
		kitchen.SortForStation(seat.Entries)
		seat.LateArrival = seat.ArrivedAt.After(observed)
		g.Seats = append(g.Seats, *seat)
	}
	sort.Slice(g.Seats, func(i, j int) bool {
		return seatLess(&g.Seats[i], &g.Seats[j])
	})

	g.OverallStatus = kitchen.DeriveStatus(entries).Code()
	return g
}

func seatKey(e kitchen.RoutingEntry) string {
	if e.SeatID == nil {
		return "table:" + e.TableID.String()
	}
	return "seat:" + e.SeatID.String()
}

// seatLess puts the whole-table group first, then seats in natural label
// order ("Seat 2" before "Seat 10").
func seatLess(a, b *SeatGroup) bool {
	if a.WholeTable() != b.WholeTable() {
		return a.WholeTable()
	}
	if c := naturalCompare(a.Label, b.Label); c != 0 {
		return c < 0
	}
	return a.Key < b.Key
}

func naturalCompare(a, b string) int {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, restA := leadingDigits(a)
			nb, restB := leadingDigits(b)
			na = strings.TrimLeft(na, "0")
			nb = strings.TrimLeft(nb, "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			a, b = restA, restB
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
