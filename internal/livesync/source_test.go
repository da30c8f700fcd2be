package livesync

import (
	"context"
	"testing"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/memory"
	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

func TestTableBumpReachesFeedsAsOneSet(t *testing.T) {
	ctx := context.Background()
	bus := pkg.NewLocalBus(nil)
	store := memory.NewStore()
	ledger := kitchen.NewLedger(kitchen.LedgerDeps{
		Orders:    store.Orders(),
		Entries:   store.Entries(),
		Publisher: bus,
	})
	reg := NewRegistry(NewBusSource(bus, event.JSON, nil), RegistryOptions{})

	grill, salad := uuid.New(), uuid.New()
	table := uuid.New()
	order := &kitchen.Order{ID: uuid.New(), TableID: table}
	a, b := newEntry(grill, table), newEntry(salad, table)
	a.OrderID, b.OrderID = order.ID, order.ID
	if err := store.Orders().Record(ctx, order, []kitchen.RoutingEntry{a, b}); err != nil {
		t.Fatal(err)
	}

	filters := map[string]Filter{
		"expo":         {Role: RoleExpo},
		"admin":        {Role: RoleAdmin},
		"server":       {Role: RoleServer, Tables: []uuid.UUID{table}},
		"otherServer":  {Role: RoleServer, Tables: []uuid.UUID{uuid.New()}},
		"station":      {Role: RoleStation, StationID: &grill},
		"stationTable": {Role: RoleStation, StationID: &salad, TableID: &table},
	}
	listeners := map[string]*Listener{}
	for name, f := range filters {
		l, err := reg.Acquire(ctx, f)
		if err != nil {
			t.Fatalf("Acquire %s: %v", name, err)
		}
		defer l.Release()
		listeners[name] = l
	}

	if _, err := ledger.BumpTable(ctx, table); err != nil {
		t.Fatalf("BumpTable: %v", err)
	}

	tests := []struct {
		name    string
		entries int
	}{
		{"expo", 2},
		{"admin", 2},
		{"server", 2},
		{"otherServer", 2},
		{"station", 1},
		{"stationTable", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := listeners[tt.name]
			u := receive(t, l)
			if u.Entries == nil || u.Entries.Type != event.EventTableBumped {
				t.Fatalf("update = %+v, want table bump", u)
			}
			if len(u.Entries.Entries) != tt.entries {
				t.Errorf("bump carried %d entries, want %d", len(u.Entries.Entries), tt.entries)
			}
			expectNothing(t, l)
		})
	}
}

func TestTableBumpUpdateKeyedByTable(t *testing.T) {
	table := uuid.New()
	u := entriesUpdate(newEntry(uuid.New(), table), newEntry(uuid.New(), table))
	u.Entries.Type = event.EventTableBumped
	u.Entries.StationID = uuid.Nil

	single := entriesUpdate(newEntry(uuid.New(), table))
	single.Entries.Type = event.EventTableBumped

	if u.Key() != "bump:"+table.String() || single.Key() != u.Key() {
		t.Errorf("keys = %q, %q, want both bump:%s", u.Key(), single.Key(), table)
	}
}
