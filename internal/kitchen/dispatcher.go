package kitchen

import (
	"context"
	"errors"
	"time"

	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/google/uuid"
)

// Dispatcher places new orders: it validates them, routes them against
// the current catalog and records the result in the ledger.
type Dispatcher struct {
	stations *Stations
	router   *Router
	ledger   *Ledger
	now      func() time.Time
	logger   logging.Logger
}

func NewDispatcher(stations *Stations, router *Router, ledger *Ledger, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Dispatcher{
		stations: stations,
		router:   router,
		ledger:   ledger,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("component", "Dispatcher"),
	}
}

// Place routes and records order. Placing an order ID that was already
// recorded returns the entries recorded the first time.
func (d *Dispatcher) Place(ctx context.Context, order *Order) ([]RoutingEntry, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	now := d.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}

	catalog, err := d.stations.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := d.router.Route(order, catalog, now)
	if err != nil {
		d.logger.Error("cannot route order", "order_id", order.ID, "error", err)
		return nil, err
	}

	if err := d.ledger.Record(ctx, order, entries); err != nil {
		if errors.Is(err, ErrConflict) {
			existing, lerr := d.ledger.entries.List(ctx, EntryFilter{OrderID: &order.ID})
			if lerr == nil && len(existing) > 0 {
				d.logger.Info("order already routed", "order_id", order.ID)
				return existing, nil
			}
		}
		return nil, err
	}
	return entries, nil
}
