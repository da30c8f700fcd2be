package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of the kitchen repositories for
// development and tests. One mutex guards all collections so order
// recording and bulk updates are atomic.
type Store struct {
	mutex    sync.RWMutex
	stations map[uuid.UUID]kitchen.Station
	orders   map[uuid.UUID]kitchen.Order
	entries  map[uuid.UUID]kitchen.RoutingEntry
}

func NewStore() *Store {
	return &Store{
		stations: make(map[uuid.UUID]kitchen.Station),
		orders:   make(map[uuid.UUID]kitchen.Order),
		entries:  make(map[uuid.UUID]kitchen.RoutingEntry),
	}
}

// Reset removes all stations, orders and entries.
func (s *Store) Reset(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stations = make(map[uuid.UUID]kitchen.Station)
	s.orders = make(map[uuid.UUID]kitchen.Order)
	s.entries = make(map[uuid.UUID]kitchen.RoutingEntry)
	return nil
}

func (s *Store) Stations() *StationRepo { return &StationRepo{s} }
func (s *Store) Orders() *OrderRepo     { return &OrderRepo{s} }
func (s *Store) Entries() *EntryRepo    { return &EntryRepo{s} }

type StationRepo struct{ s *Store }

func (r *StationRepo) Create(ctx context.Context, st *kitchen.Station) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()
	if _, ok := r.s.stations[st.ID]; ok {
		return kitchen.Errorf("create station", st.ID.String(), kitchen.ErrConflict, "station exists")
	}
	r.s.stations[st.ID] = *st
	return nil
}

func (r *StationRepo) Update(ctx context.Context, st *kitchen.Station) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()
	if _, ok := r.s.stations[st.ID]; !ok {
		return kitchen.NewError("update station", st.ID.String(), kitchen.ErrNotFound, nil)
	}
	r.s.stations[st.ID] = *st
	return nil
}

func (r *StationRepo) FindByID(ctx context.Context, id kitchen.StationID) (*kitchen.Station, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()
	st, ok := r.s.stations[id]
	if !ok {
		return nil, kitchen.NewError("find station", id.String(), kitchen.ErrNotFound, nil)
	}
	return &st, nil
}

func (r *StationRepo) List(ctx context.Context) ([]kitchen.Station, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()
	out := make([]kitchen.Station, 0, len(r.s.stations))
	for _, st := range r.s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

type OrderRepo struct{ s *Store }

func (r *OrderRepo) Record(ctx context.Context, o *kitchen.Order, entries []kitchen.RoutingEntry) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()
	if _, ok := r.s.orders[o.ID]; ok {
		return kitchen.Errorf("record order", o.ID.String(), kitchen.ErrConflict, "order already recorded")
	}
	r.s.orders[o.ID] = *o
	for _, e := range entries {
		r.s.entries[e.ID] = e.Clone()
	}
	return nil
}

func (r *OrderRepo) FindByID(ctx context.Context, id kitchen.OrderID) (*kitchen.Order, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, kitchen.NewError("find order", id.String(), kitchen.ErrNotFound, nil)
	}
	return &o, nil
}

type EntryRepo struct{ s *Store }

func (r *EntryRepo) Update(ctx context.Context, e *kitchen.RoutingEntry, expectedVersion int) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()
	if err := r.s.checkVersion(e.ID, expectedVersion); err != nil {
		return err
	}
	r.s.entries[e.ID] = e.Clone()
	return nil
}

func (r *EntryRepo) UpdateMany(ctx context.Context, entries []kitchen.RoutingEntry, expected map[kitchen.EntryID]int) error {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()
	for _, e := range entries {
		if err := r.s.checkVersion(e.ID, expected[e.ID]); err != nil {
			return err
		}
	}
	for _, e := range entries {
		r.s.entries[e.ID] = e.Clone()
	}
	return nil
}

func (r *EntryRepo) FindByID(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()
	e, ok := r.s.entries[id]
	if !ok {
		return nil, kitchen.NewError("find entry", id.String(), kitchen.ErrNotFound, nil)
	}
	c := e.Clone()
	return &c, nil
}

func (r *EntryRepo) List(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()
	out := make([]kitchen.RoutingEntry, 0)
	for _, e := range r.s.entries {
		if filter.Matches(&e) {
			out = append(out, e.Clone())
		}
	}
	kitchen.SortForStation(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) checkVersion(id kitchen.EntryID, expected int) error {
	cur, ok := s.entries[id]
	if !ok {
		return kitchen.NewError("update entry", id.String(), kitchen.ErrNotFound, nil)
	}
	if cur.Version != expected {
		return kitchen.Errorf("update entry", id.String(), kitchen.ErrConflict, "version %d, expected %d", cur.Version, expected)
	}
	return nil
}
