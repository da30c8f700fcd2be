package kitchen

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockStationRepository is a test mock for StationRepository
type MockStationRepository struct {
	mu       sync.Mutex
	stations map[uuid.UUID]*Station

	CreateFunc   func(ctx context.Context, s *Station) error
	UpdateFunc   func(ctx context.Context, s *Station) error
	FindByIDFunc func(ctx context.Context, id StationID) (*Station, error)
	ListFunc     func(ctx context.Context) ([]Station, error)
}

func NewMockStationRepository(stations ...Station) *MockStationRepository {
	m := &MockStationRepository{stations: make(map[uuid.UUID]*Station)}
	for i := range stations {
		s := stations[i]
		m.stations[s.ID] = &s
	}
	return m
}

func (m *MockStationRepository) Create(ctx context.Context, s *Station) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stations[s.ID] = &cp
	return nil
}

func (m *MockStationRepository) Update(ctx context.Context, s *Station) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.stations[s.ID] = &cp
	return nil
}

func (m *MockStationRepository) FindByID(ctx context.Context, id StationID) (*Station, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockStationRepository) List(ctx context.Context) ([]Station, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Station, 0, len(m.stations))
	for _, s := range m.stations {
		out = append(out, *s)
	}
	return out, nil
}

// MockStore is a test mock for OrderRepository and EntryRepository
// sharing one in-memory state.
type MockStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*Order
	entries map[uuid.UUID]*RoutingEntry

	RecordFunc     func(ctx context.Context, o *Order, entries []RoutingEntry) error
	UpdateFunc     func(ctx context.Context, e *RoutingEntry, expectedVersion int) error
	UpdateManyFunc func(ctx context.Context, entries []RoutingEntry, expected map[EntryID]int) error
	ListFunc       func(ctx context.Context, filter EntryFilter) ([]RoutingEntry, error)
}

func NewMockStore() *MockStore {
	return &MockStore{
		orders:  make(map[uuid.UUID]*Order),
		entries: make(map[uuid.UUID]*RoutingEntry),
	}
}

func (m *MockStore) Put(entries ...RoutingEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cp := e.Clone()
		m.entries[e.ID] = &cp
	}
}

func (m *MockStore) Record(ctx context.Context, o *Order, entries []RoutingEntry) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, o, entries)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return ErrConflict
	}
	cp := *o
	m.orders[o.ID] = &cp
	for _, e := range entries {
		ec := e.Clone()
		m.entries[e.ID] = &ec
	}
	return nil
}

func (m *MockStore) FindByID(ctx context.Context, id EntryID) (*RoutingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := e.Clone()
	return &cp, nil
}

func (m *MockStore) FindOrder(ctx context.Context, id OrderID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockStore) Update(ctx context.Context, e *RoutingEntry, expectedVersion int) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, e, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[e.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	cp := e.Clone()
	m.entries[e.ID] = &cp
	return nil
}

func (m *MockStore) UpdateMany(ctx context.Context, entries []RoutingEntry, expected map[EntryID]int) error {
	if m.UpdateManyFunc != nil {
		return m.UpdateManyFunc(ctx, entries, expected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cur, ok := m.entries[e.ID]
		if !ok {
			return ErrNotFound
		}
		if cur.Version != expected[e.ID] {
			return ErrConflict
		}
	}
	for _, e := range entries {
		cp := e.Clone()
		m.entries[e.ID] = &cp
	}
	return nil
}

func (m *MockStore) List(ctx context.Context, filter EntryFilter) ([]RoutingEntry, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoutingEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if filter.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	SortForStation(out)
	return out, nil
}

// mockOrders adapts MockStore to OrderRepository; FindByID collides
// with the entry lookup.
type mockOrders struct{ *MockStore }

func (o mockOrders) FindByID(ctx context.Context, id OrderID) (*Order, error) {
	return o.MockStore.FindOrder(ctx, id)
}

// MockPublisher records published messages.
type MockPublisher struct {
	mu          sync.Mutex
	Messages    []PublishedMessage
	PublishFunc func(ctx context.Context, topic string, msg []byte) error
}

type PublishedMessage struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, PublishedMessage{Topic: topic, Data: append([]byte(nil), msg...)})
	return nil
}

func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}
