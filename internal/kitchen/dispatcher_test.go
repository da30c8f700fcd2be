package kitchen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestDispatcher(stationRepo *MockStationRepository, store *MockStore) *Dispatcher {
	ledger := newTestLedger(store, NewMockPublisher(), &fixedClock{now: t0})
	return NewDispatcher(NewStations(stationRepo, nil), NewRouter(DefaultRules()), ledger, nil)
}

func TestDispatcherPlace(t *testing.T) {
	ctx := context.Background()

	t.Run("routesAndRecords", func(t *testing.T) {
		store := NewMockStore()
		d := newTestDispatcher(NewMockStationRepository(testStations()...), store)
		order := &Order{
			TableID: uuid.New(),
			Items: []LineItem{
				{Name: "Ribeye", Category: "Grill"},
				{Name: "Caesar", Category: "salad"},
			},
		}

		entries, err := d.Place(ctx, order)
		if err != nil {
			t.Fatalf("Place() error: %v", err)
		}
		if order.ID == uuid.Nil {
			t.Error("order ID not assigned")
		}
		if len(entries) != 2 {
			t.Fatalf("len(entries) = %d, want 2", len(entries))
		}
		stored, _ := store.List(ctx, EntryFilter{OrderID: &order.ID})
		if len(stored) != 2 {
			t.Errorf("stored %d entries, want 2", len(stored))
		}
	})

	t.Run("duplicateOrderIsIdempotent", func(t *testing.T) {
		store := NewMockStore()
		d := newTestDispatcher(NewMockStationRepository(testStations()...), store)
		id := uuid.New()
		table := uuid.New()
		items := []LineItem{{Name: "Ribeye", Category: "grill"}}

		first, err := d.Place(ctx, &Order{ID: id, TableID: table, Items: items})
		if err != nil {
			t.Fatal(err)
		}
		second, err := d.Place(ctx, &Order{ID: id, TableID: table, Items: items})
		if err != nil {
			t.Fatalf("second Place() error: %v", err)
		}
		if len(second) != 1 || second[0].ID != first[0].ID {
			t.Errorf("second Place() = %+v, want the first entries", second)
		}
	})

	t.Run("noActiveStations", func(t *testing.T) {
		d := newTestDispatcher(NewMockStationRepository(), NewMockStore())
		_, err := d.Place(ctx, &Order{TableID: uuid.New(), Items: []LineItem{{Name: "Soup"}}})
		if !errors.Is(err, ErrConfiguration) {
			t.Fatalf("Place() error = %v, want configuration", err)
		}
	})

	t.Run("invalidOrder", func(t *testing.T) {
		d := newTestDispatcher(NewMockStationRepository(testStations()...), NewMockStore())
		_, err := d.Place(ctx, &Order{TableID: uuid.New()})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("Place() error = %v, want validation", err)
		}
	})
}

func TestStationsCatalogInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMockStationRepository(testStations()...)
	stations := NewStations(repo, nil)

	before, err := stations.Catalog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if before.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", before.Len())
	}

	grill, _ := before.Lookup("grill")
	inactive := false
	if _, err := stations.Update(ctx, grill.ID, StationPatch{Active: &inactive}); err != nil {
		t.Fatal(err)
	}

	after, err := stations.Catalog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.Len() != 2 {
		t.Errorf("Len() after deactivation = %d, want 2", after.Len())
	}
	if _, ok := after.Lookup("grill"); ok {
		t.Error("deactivated station still routable")
	}
	if _, ok := after.Station(grill.ID); !ok {
		t.Error("deactivated station dropped from catalog")
	}
}

func TestStationsCatalogExpires(t *testing.T) {
	ctx := context.Background()
	repo := NewMockStationRepository()
	clock := &fixedClock{now: t0}
	stations := NewStations(repo, nil).WithTTL(30*time.Second, clock.Now)

	if c, err := stations.Catalog(ctx); err != nil || c.Len() != 0 {
		t.Fatalf("Catalog() = %v, %v, want empty", c, err)
	}

	// Another process adds a station straight to the store.
	_ = repo.Create(ctx, &Station{ID: uuid.New(), Name: "Grill", Category: "grill", Active: true})

	clock.now = t0.Add(10 * time.Second)
	if c, _ := stations.Catalog(ctx); c.Len() != 0 {
		t.Errorf("snapshot reloaded before its TTL")
	}

	clock.now = t0.Add(31 * time.Second)
	c, err := stations.Catalog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Lookup("grill"); !ok {
		t.Error("station added elsewhere not visible after TTL")
	}
}

func TestNewStationNames(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		category string
		want     string
	}{
		{"explicitName", "Hot Line", "grill", "Hot Line"},
		{"knownCategoryLabel", "", " Pastry ", "Pastry"},
		{"unknownCategoryStaysBlank", "", "wok", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewStation(tt.input, tt.category, "", 0).Name; got != tt.want {
				t.Errorf("Name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStationsCreateValidation(t *testing.T) {
	stations := NewStations(NewMockStationRepository(), nil)
	err := stations.Create(context.Background(), NewStation("", "grill", "", 0))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Create() error = %v, want validation", err)
	}
}
