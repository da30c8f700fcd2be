package kitchen

import (
	"context"
	"fmt"

	"github.com/appetiteclub/kds/pkg/enums/station"
)

// Seed is one idempotent data setup step run at startup.
type Seed struct {
	ID          string
	Description string
	Run         func(ctx context.Context) error
}

// Seeds returns all seeds for the kitchen display service
func Seeds(stations *Stations) []Seed {
	return []Seed{
		{
			ID:          "demo_stations_v1",
			Description: "Create the demo station catalog",
			Run: func(ctx context.Context) error {
				return seedDemoStations(ctx, stations)
			},
		},
	}
}

var demoStations = []struct {
	name     string
	category station.Category
	color    string
}{
	{"Expo", station.Categories.Expo, "#6b7280"},
	{"Grill", station.Categories.Grill, "#dc2626"},
	{"Fryer", station.Categories.Fry, "#f59e0b"},
	{"Garde Manger", station.Categories.Salad, "#16a34a"},
	{"Pastry", station.Categories.Pastry, "#db2777"},
	{"Bar", station.Categories.Bar, "#2563eb"},
	{"Coffee", station.Categories.Coffee, "#78350f"},
}

func seedDemoStations(ctx context.Context, stations *Stations) error {
	existing, err := stations.List(ctx)
	if err != nil {
		return fmt.Errorf("cannot list stations: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.Category] = true
	}

	for i, d := range demoStations {
		if have[d.category.Code()] {
			continue
		}
		st := NewStation(d.name, d.category.Code(), d.color, i)
		if err := stations.Create(ctx, st); err != nil {
			return fmt.Errorf("cannot create demo station %s: %w", d.name, err)
		}
	}
	return nil
}
