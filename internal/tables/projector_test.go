package tables

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

// fakeReader is a test double for kitchen.EntryReader
type fakeReader struct {
	mu         sync.Mutex
	entries    []kitchen.RoutingEntry
	ActiveFunc func(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error)
}

func (f *fakeReader) set(entries ...kitchen.RoutingEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
}

func (f *fakeReader) Active(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error) {
	if f.ActiveFunc != nil {
		return f.ActiveFunc(ctx, filter)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kitchen.RoutingEntry
	for i := range f.entries {
		if filter.Matches(&f.entries[i]) {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeReader) Get(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			e := f.entries[i]
			return &e, nil
		}
	}
	return nil, kitchen.ErrNotFound
}

// inlineScheduler records keys and runs work immediately.
type inlineScheduler struct {
	keys []string
}

func (s *inlineScheduler) Schedule(key string, fn func()) {
	s.keys = append(s.keys, key)
	fn()
}

func TestProjectorPublishesTableUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := pkg.NewLocalBus(nil)
	reader := &fakeReader{}
	sched := &inlineScheduler{}
	projector := NewProjector(ProjectorDeps{
		Reader:     reader,
		Aggregator: NewAggregator(0, time.Minute),
		Subscriber: bus,
		Publisher:  bus,
		Scheduler:  sched,
		Now:        func() time.Time { return t0 },
	})
	if err := projector.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var got []GroupChange
	err := bus.Subscribe(ctx, event.TablesTopicPrefix+".>", func(ctx context.Context, msg []byte) error {
		var change GroupChange
		if err := event.JSON.Unmarshal(msg, &change); err != nil {
			return err
		}
		got = append(got, change)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	table := uuid.New()
	e := entryAt(table, nil, "", t0)
	reader.set(e)
	publishChange(t, bus, e)

	if len(got) != 1 || got[0].Type != event.EventTableUpdated || got[0].Group == nil {
		t.Fatalf("changes after routing = %+v", got)
	}
	if got[0].Group.TableID != table {
		t.Errorf("group table = %v, want %v", got[0].Group.TableID, table)
	}
	if len(sched.keys) != 1 || sched.keys[0] != "table:"+table.String() {
		t.Errorf("scheduled keys = %v", sched.keys)
	}

	reader.set()
	publishChange(t, bus, e)
	if len(got) != 2 || got[1].Type != event.EventTableRemoved || got[1].Group != nil {
		t.Fatalf("changes after removal = %+v", got)
	}
}

func TestProjectorReadFailurePublishesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := pkg.NewLocalBus(nil)
	reader := &fakeReader{ActiveFunc: func(ctx context.Context, f kitchen.EntryFilter) ([]kitchen.RoutingEntry, error) {
		return nil, errors.New("store down")
	}}
	projector := NewProjector(ProjectorDeps{Reader: reader, Aggregator: NewAggregator(0, 0), Subscriber: bus, Publisher: bus})
	if err := projector.Start(ctx); err != nil {
		t.Fatal(err)
	}
	published := 0
	_ = bus.Subscribe(ctx, event.TablesTopicPrefix+".>", func(ctx context.Context, msg []byte) error {
		published++
		return nil
	})

	publishChange(t, bus, entryAt(uuid.New(), nil, "", t0))
	if published != 0 {
		t.Errorf("published %d table changes on read failure", published)
	}
}

func publishChange(t *testing.T, bus *pkg.LocalBus, e kitchen.RoutingEntry) {
	t.Helper()
	data, err := event.JSON.Marshal(kitchen.EntryChange{
		Type:      event.EventEntryRouted,
		StationID: e.StationID,
		TableID:   e.TableID,
		Entries:   []kitchen.RoutingEntry{e},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(context.Background(), event.RoutingSubject(e.StationID.String(), e.TableID.String()), data); err != nil {
		t.Fatal(err)
	}
}
