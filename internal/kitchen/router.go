package kitchen

import (
	"time"

	"github.com/appetiteclub/kds/pkg/enums/station"
	"github.com/google/uuid"
)

// Rules tune how items map to stations and how urgent new entries are.
type Rules struct {
	// Aliases maps item categories to station categories (steak -> grill).
	Aliases map[string]string
	// DefaultCategory names the station category unmatched items go to.
	DefaultCategory string
	BasePriority    int
	RushBoost       int
}

func DefaultRules() Rules {
	return Rules{
		Aliases:         map[string]string{},
		DefaultCategory: station.Categories.Expo.Code(),
		BasePriority:    0,
		RushBoost:       10,
	}
}

// Router turns an order into routing entries, one per responsible
// station. It does no I/O.
type Router struct {
	rules Rules
}

func NewRouter(rules Rules) *Router {
	aliases := make(map[string]string, len(rules.Aliases))
	for k, v := range rules.Aliases {
		aliases[station.Normalize(k)] = station.Normalize(v)
	}
	rules.Aliases = aliases
	rules.DefaultCategory = station.Normalize(rules.DefaultCategory)
	return &Router{rules: rules}
}

func (r *Router) Rules() Rules {
	return r.rules
}

// Route assigns every item of order to an active station. Items whose
// category has no active station go to the default station. All entries
// share routedAt = now. An empty catalog is a configuration error.
func (r *Router) Route(order *Order, catalog *Catalog, now time.Time) ([]RoutingEntry, error) {
	ref := order.ID.String()
	if order.TableID == uuid.Nil {
		return nil, Errorf("route", ref, ErrValidation, "order has no table")
	}
	if len(order.Items) == 0 {
		return nil, Errorf("route", ref, ErrValidation, "order has no items")
	}
	if catalog == nil || catalog.Len() == 0 {
		return nil, Errorf("route", ref, ErrConfiguration, "no active stations")
	}

	fallback := r.fallback(catalog)
	priority := r.rules.BasePriority
	if order.Rush {
		priority += r.rules.RushBoost
	}

	byStation := make(map[StationID]*RoutingEntry)
	for _, item := range order.Items {
		target, ok := r.lookup(catalog, item.Category)
		if !ok {
			target = fallback
		}
		entry, exists := byStation[target.ID]
		if !exists {
			entry = &RoutingEntry{
				ID:          uuid.New(),
				OrderID:     order.ID,
				StationID:   target.ID,
				StationName: target.Name,
				TableID:     order.TableID,
				TableLabel:  order.TableLabel,
				SeatID:      order.SeatID,
				SeatLabel:   order.SeatLabel,
				RoutedAt:    now,
				Priority:    priority,
				RecallCount: 0,
				UpdatedAt:   now,
				Version:     1,
			}
			byStation[target.ID] = entry
		}
		entry.Items = append(entry.Items, item)
	}

	entries := make([]RoutingEntry, 0, len(byStation))
	for _, s := range catalog.Active() {
		if e, ok := byStation[s.ID]; ok {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (r *Router) lookup(catalog *Catalog, category string) (Station, bool) {
	category = station.Normalize(category)
	if alias, ok := r.rules.Aliases[category]; ok {
		if s, found := catalog.Lookup(alias); found {
			return s, true
		}
	}
	return catalog.Lookup(category)
}

// fallback is the default-category station, else the first active one.
func (r *Router) fallback(catalog *Catalog) Station {
	if s, ok := catalog.Lookup(r.rules.DefaultCategory); ok {
		return s
	}
	return catalog.active[0]
}
