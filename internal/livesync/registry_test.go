package livesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func receive(t *testing.T, l *Listener) Update {
	t.Helper()
	select {
	case u, ok := <-l.Updates():
		if !ok {
			t.Fatal("listener channel closed")
		}
		return u
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	return Update{}
}

func expectNothing(t *testing.T, l *Listener) {
	t.Helper()
	select {
	case u := <-l.Updates():
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestRegistrySharesFeedPerSignature(t *testing.T) {
	source := &MockSource{}
	reg := NewRegistry(source, RegistryOptions{})
	grill := uuid.New()
	filter := Filter{Role: RoleStation, StationID: &grill}

	a, err := reg.Acquire(context.Background(), filter)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := reg.Acquire(context.Background(), filter)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if reg.Opened() != 1 {
		t.Errorf("Opened() = %d, want 1", reg.Opened())
	}
	if reg.ActiveSubscriptions() != 1 {
		t.Errorf("ActiveSubscriptions() = %d, want 1", reg.ActiveSubscriptions())
	}
	if reg.Listeners(filter) != 2 {
		t.Errorf("Listeners() = %d, want 2", reg.Listeners(filter))
	}

	source.Push(entriesUpdate(newEntry(grill, uuid.New())))
	receive(t, a)
	receive(t, b)

	a.Release()
	a.Release()
	if _, closes := source.Counts(); closes != 0 {
		t.Errorf("feed closed while a listener remains")
	}

	b.Release()
	if _, closes := source.Counts(); closes != 1 {
		t.Errorf("closes = %d, want 1 after last release", closes)
	}
	if reg.ActiveSubscriptions() != 0 {
		t.Errorf("ActiveSubscriptions() = %d after last release", reg.ActiveSubscriptions())
	}
	if _, ok := <-b.Updates(); ok {
		t.Error("released listener channel should be closed")
	}

	c, err := reg.Acquire(context.Background(), filter)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer c.Release()
	if reg.Opened() != 2 {
		t.Errorf("Opened() = %d, want a fresh feed", reg.Opened())
	}
}

func TestRegistryAppliesRoleFiltering(t *testing.T) {
	source := &MockSource{}
	reg := NewRegistry(source, RegistryOptions{})
	grill, fry := uuid.New(), uuid.New()
	mine := uuid.New()

	station, err := reg.Acquire(context.Background(), Filter{Role: RoleStation, StationID: &grill})
	if err != nil {
		t.Fatalf("Acquire station: %v", err)
	}
	defer station.Release()
	server, err := reg.Acquire(context.Background(), Filter{Role: RoleServer, Tables: []uuid.UUID{mine}})
	if err != nil {
		t.Fatalf("Acquire server: %v", err)
	}
	defer server.Release()

	source.Push(entriesUpdate(newEntry(fry, uuid.New())))
	expectNothing(t, station)
	expectNothing(t, server)

	source.Push(entriesUpdate(newEntry(grill, mine)))
	u := receive(t, station)
	if u.Entries.Entries[0].StationID != grill {
		t.Errorf("station received foreign entry")
	}
	receive(t, server)
}

func TestRegistryCancelledAcquireDoesNotLeak(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	source := &MockSource{
		OpenFunc: func(ctx context.Context, filter Filter) error {
			close(entered)
			<-gate
			return nil
		},
	}
	reg := NewRegistry(source, RegistryOptions{})
	filter := Filter{Role: RoleExpo}

	first := make(chan *Listener, 1)
	go func() {
		l, err := reg.Acquire(context.Background(), filter)
		if err != nil {
			t.Errorf("first Acquire: %v", err)
		}
		first <- l
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := reg.Acquire(ctx, filter); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := reg.Listeners(filter); n != 1 {
		t.Errorf("Listeners() = %d after cancelled acquire, want 1", n)
	}

	close(gate)
	l := <-first
	if l == nil {
		t.Fatal("first listener missing")
	}
	l.Release()

	opens, closes := source.Counts()
	if opens != 1 || closes != 1 {
		t.Errorf("opens=%d closes=%d, want 1 and 1", opens, closes)
	}
	if reg.ActiveSubscriptions() != 0 {
		t.Errorf("ActiveSubscriptions() = %d, want 0", reg.ActiveSubscriptions())
	}
}

func TestRegistryOpenFailure(t *testing.T) {
	boom := errors.New("broker down")
	source := &MockSource{OpenFunc: func(ctx context.Context, filter Filter) error { return boom }}
	reg := NewRegistry(source, RegistryOptions{})

	if _, err := reg.Acquire(context.Background(), Filter{Role: RoleExpo}); !errors.Is(err, boom) {
		t.Fatalf("expected open error, got %v", err)
	}
	if reg.Opened() != 0 || reg.ActiveSubscriptions() != 0 {
		t.Errorf("failed open should leave no feed")
	}
}

func TestRegistryRejectsInvalidFilter(t *testing.T) {
	reg := NewRegistry(&MockSource{}, RegistryOptions{})
	if _, err := reg.Acquire(context.Background(), Filter{Role: RoleStation}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRegistryDebouncesPerEntity(t *testing.T) {
	source := &MockSource{}
	reg := NewRegistry(source, RegistryOptions{Debounce: 20 * time.Millisecond})
	l, err := reg.Acquire(context.Background(), Filter{Role: RoleExpo})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	e := newEntry(uuid.New(), uuid.New())
	for v := 1; v <= 3; v++ {
		e.Version = v
		source.Push(entriesUpdate(e))
	}

	u := receive(t, l)
	if got := u.Entries.Entries[0].Version; got != 3 {
		t.Errorf("delivered version %d, want last (3)", got)
	}
	expectNothing(t, l)
}
