package display

import (
	"sort"
	"sync"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/livesync"
	"github.com/appetiteclub/kds/internal/tables"
)

// View is the local state a display renders: entries keyed by ID and the
// table groups it receives. Entries changed optimistically carry a
// pending token until the server confirms or the change is rolled back.
type View struct {
	mu        sync.Mutex
	entries   map[kitchen.EntryID]kitchen.RoutingEntry
	groups    map[kitchen.TableID]tables.TableGroup
	pending   map[kitchen.EntryID]uint64
	nextToken uint64
	onChange  func()
}

func NewView() *View {
	return &View{
		entries: make(map[kitchen.EntryID]kitchen.RoutingEntry),
		groups:  make(map[kitchen.TableID]tables.TableGroup),
		pending: make(map[kitchen.EntryID]uint64),
	}
}

// OnChange registers fn to run after every change to the view. It runs
// without the view lock held.
func (v *View) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

func (v *View) changed() {
	v.mu.Lock()
	fn := v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Entry returns a copy of the entry with id.
func (v *View) Entry(id kitchen.EntryID) (kitchen.RoutingEntry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[id]
	if !ok {
		return kitchen.RoutingEntry{}, false
	}
	return e.Clone(), true
}

// Pending reports whether id has an unconfirmed local change.
func (v *View) Pending(id kitchen.EntryID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.pending[id]
	return ok
}

// Entries returns every entry in station order.
func (v *View) Entries() []kitchen.RoutingEntry {
	v.mu.Lock()
	out := make([]kitchen.RoutingEntry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e.Clone())
	}
	v.mu.Unlock()
	kitchen.SortForStation(out)
	return out
}

// Station returns the entries of one station in queue order.
func (v *View) Station(id kitchen.StationID) []kitchen.RoutingEntry {
	var out []kitchen.RoutingEntry
	for _, e := range v.Entries() {
		if e.StationID == id {
			out = append(out, e)
		}
	}
	return out
}

// Table returns the entries of one table in queue order.
func (v *View) Table(id kitchen.TableID) []kitchen.RoutingEntry {
	var out []kitchen.RoutingEntry
	for _, e := range v.Entries() {
		if e.TableID == id {
			out = append(out, e)
		}
	}
	return out
}

// Group returns the last table group received for id.
func (v *View) Group(id kitchen.TableID) (tables.TableGroup, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, ok := v.groups[id]
	return g, ok
}

// Groups returns the known table groups ordered by earliest routing.
func (v *View) Groups() []tables.TableGroup {
	v.mu.Lock()
	out := make([]tables.TableGroup, 0, len(v.groups))
	for _, g := range v.groups {
		out = append(out, g)
	}
	v.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarliestRoutedAt.Equal(out[j].EarliestRoutedAt) {
			return out[i].EarliestRoutedAt.Before(out[j].EarliestRoutedAt)
		}
		return out[i].TableID.String() < out[j].TableID.String()
	})
	return out
}

// Replace swaps the whole state for an authoritative snapshot. Pending
// optimistic changes are superseded and will not be rolled back.
func (v *View) Replace(entries []kitchen.RoutingEntry, groups []tables.TableGroup) {
	v.mu.Lock()
	v.entries = make(map[kitchen.EntryID]kitchen.RoutingEntry, len(entries))
	for _, e := range entries {
		v.entries[e.ID] = e.Clone()
	}
	v.groups = make(map[kitchen.TableID]tables.TableGroup, len(groups))
	for _, g := range groups {
		v.groups[g.TableID] = g
	}
	v.pending = make(map[kitchen.EntryID]uint64)
	v.mu.Unlock()
	v.changed()
}

// Confirm stores server state. Server state always replaces a pending
// optimistic value; otherwise an older version never replaces a newer
// one, so a late push cannot undo a confirmed result.
func (v *View) Confirm(entries ...kitchen.RoutingEntry) {
	v.mu.Lock()
	applied := false
	for _, e := range entries {
		if v.confirmLocked(e) {
			applied = true
		}
	}
	v.mu.Unlock()
	if applied {
		v.changed()
	}
}

func (v *View) confirmLocked(e kitchen.RoutingEntry) bool {
	current, known := v.entries[e.ID]
	_, pending := v.pending[e.ID]
	if known && !pending && e.Version < current.Version {
		return false
	}
	v.entries[e.ID] = e.Clone()
	delete(v.pending, e.ID)
	return true
}

// Remove drops entries the server no longer reports.
func (v *View) Remove(ids ...kitchen.EntryID) {
	v.mu.Lock()
	for _, id := range ids {
		delete(v.entries, id)
		delete(v.pending, id)
	}
	v.mu.Unlock()
	v.changed()
}

// Apply folds a pushed update into the view.
func (v *View) Apply(u livesync.Update) {
	switch {
	case u.Entries != nil:
		v.Confirm(u.Entries.Entries...)
	case u.Table != nil:
		v.mu.Lock()
		if u.Table.Group == nil {
			delete(v.groups, u.Table.TableID)
		} else {
			v.groups[u.Table.TableID] = *u.Table.Group
		}
		v.mu.Unlock()
		v.changed()
	}
}

// begin applies mutate to the listed entries as one optimistic change
// and returns their previous values with the token guarding rollback.
func (v *View) begin(ids []kitchen.EntryID, mutate func(e *kitchen.RoutingEntry) error) ([]kitchen.RoutingEntry, uint64, error) {
	v.mu.Lock()
	snapshot := make([]kitchen.RoutingEntry, 0, len(ids))
	next := make([]kitchen.RoutingEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := v.entries[id]
		if !ok {
			v.mu.Unlock()
			return nil, 0, kitchen.Errorf("apply locally", id.String(), kitchen.ErrNotFound, "entry not in view")
		}
		snapshot = append(snapshot, e.Clone())
		changed := e.Clone()
		if err := mutate(&changed); err != nil {
			v.mu.Unlock()
			return nil, 0, err
		}
		next = append(next, changed)
	}
	v.nextToken++
	token := v.nextToken
	for _, e := range next {
		v.entries[e.ID] = e
		v.pending[e.ID] = token
	}
	v.mu.Unlock()
	v.changed()
	return snapshot, token, nil
}

// rollback restores snapshot for entries still holding token. Entries
// the server has updated since keep the server value.
func (v *View) rollback(snapshot []kitchen.RoutingEntry, token uint64) int {
	v.mu.Lock()
	restored := 0
	for _, e := range snapshot {
		if v.pending[e.ID] != token {
			continue
		}
		v.entries[e.ID] = e
		delete(v.pending, e.ID)
		restored++
	}
	v.mu.Unlock()
	if restored > 0 {
		v.changed()
	}
	return restored
}
