package livesync

import (
	"context"
	"testing"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

func TestCachedReaderServesRepeatedReads(t *testing.T) {
	grill := uuid.New()
	e := newEntry(grill, uuid.New())
	next := &MockReader{entries: []kitchen.RoutingEntry{e}}
	reader := NewCachedReader(next, time.Minute, nil)
	ctx := context.Background()

	filter := kitchen.EntryFilter{StationID: &grill}
	for i := 0; i < 3; i++ {
		got, err := reader.Active(ctx, filter)
		if err != nil || len(got) != 1 {
			t.Fatalf("Active = %v, %v", got, err)
		}
	}
	if next.Calls() != 1 {
		t.Errorf("backing reads = %d, want 1", next.Calls())
	}

	reader.Invalidate(kitchen.EntryChange{StationID: grill, TableID: e.TableID, Entries: []kitchen.RoutingEntry{e}})
	if _, err := reader.Active(ctx, filter); err != nil {
		t.Fatal(err)
	}
	if next.Calls() != 2 {
		t.Errorf("backing reads = %d after invalidate, want 2", next.Calls())
	}
}

func TestCachedReaderReturnsCopies(t *testing.T) {
	e := newEntry(uuid.New(), uuid.New())
	next := &MockReader{entries: []kitchen.RoutingEntry{e}}
	reader := NewCachedReader(next, time.Minute, nil)
	ctx := context.Background()

	got, _ := reader.Get(ctx, e.ID)
	got.Items[0].Name = "changed"
	again, _ := reader.Get(ctx, e.ID)
	if again.Items[0].Name != "Burger" {
		t.Errorf("cached entry was mutated through a returned copy")
	}

	list, _ := reader.Active(ctx, kitchen.EntryFilter{})
	list[0].Notes = "changed"
	list, _ = reader.Active(ctx, kitchen.EntryFilter{})
	if list[0].Notes != "" {
		t.Errorf("cached list was mutated through a returned slice")
	}
}

func TestCachedReaderCompositeQueriesInvalidate(t *testing.T) {
	table := uuid.New()
	e := newEntry(uuid.New(), table)
	next := &MockReader{entries: []kitchen.RoutingEntry{e}}
	reader := NewCachedReader(next, time.Minute, nil)
	ctx := context.Background()

	since := t0
	filter := kitchen.EntryFilter{TableIDs: []uuid.UUID{table}, DoneSince: &since}
	reader.Active(ctx, filter)
	reader.Active(ctx, filter)
	if next.Calls() != 1 {
		t.Fatalf("backing reads = %d, want 1", next.Calls())
	}

	reader.Invalidate(kitchen.EntryChange{StationID: uuid.New(), TableID: uuid.New()})
	reader.Active(ctx, filter)
	if next.Calls() != 2 {
		t.Errorf("composite query survived an invalidation")
	}
}

func TestCachedReaderWatchInvalidatesFromBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grill := uuid.New()
	e := newEntry(grill, uuid.New())
	next := &MockReader{entries: []kitchen.RoutingEntry{e}}
	reader := NewCachedReader(next, time.Minute, nil)
	bus := pkg.NewLocalBus(nil)
	if err := reader.Watch(ctx, bus, event.JSON); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	filter := kitchen.EntryFilter{StationID: &grill}
	reader.Active(ctx, filter)

	change := kitchen.EntryChange{Type: event.EventEntryStatusChanged, StationID: grill, TableID: e.TableID, Entries: []kitchen.RoutingEntry{e}}
	data, _ := event.JSON.Marshal(change)
	bus.Publish(ctx, event.RoutingSubject(grill.String(), e.TableID.String()), data)

	reader.Active(ctx, filter)
	if next.Calls() != 2 {
		t.Errorf("backing reads = %d, want reload after bus change", next.Calls())
	}
}
