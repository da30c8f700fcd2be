package kitchen

import (
	"context"
	"time"

	"github.com/appetiteclub/kds/pkg/event"
	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
)

// EntryChange is the notification published after entries are persisted.
type EntryChange struct {
	Type       string         `json:"type"`
	Transition Transition     `json:"transition,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	// StationID is zero for changes spanning every station of the table.
	StationID  StationID      `json:"station_id"`
	TableID    TableID        `json:"table_id"`
	Entries    []RoutingEntry `json:"entries"`
}

type LedgerDeps struct {
	Orders    OrderRepository
	Entries   EntryRepository
	Publisher events.Publisher
	Codec     event.Codec
	// Retention is how long done entries stay visible in active reads.
	Retention time.Duration
	// OnChange runs synchronously after every persisted change, before
	// it is published.
	OnChange func(EntryChange)
	Now      func() time.Time
	Logger   logging.Logger
}

// Ledger is the authoritative store of routing entry lifecycles. Every
// state change goes through the entry state machine and is persisted
// with an optimistic version check before it is published.
type Ledger struct {
	orders    OrderRepository
	entries   EntryRepository
	publisher events.Publisher
	codec     event.Codec
	retention time.Duration
	onChange  func(EntryChange)
	now       func() time.Time
	logger    logging.Logger
}

func NewLedger(deps LedgerDeps) *Ledger {
	if deps.Logger == nil {
		deps.Logger = logging.NewNoopLogger()
	}
	if deps.Codec == nil {
		deps.Codec = event.JSON
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{
		orders:    deps.Orders,
		entries:   deps.Entries,
		publisher: deps.Publisher,
		codec:     deps.Codec,
		retention: deps.Retention,
		onChange:  deps.OnChange,
		now:       deps.Now,
		logger:    deps.Logger.With("component", "Ledger"),
	}
}

// Record persists a routed order with its entries atomically and
// announces one routed change per station.
func (l *Ledger) Record(ctx context.Context, order *Order, entries []RoutingEntry) error {
	if err := l.orders.Record(ctx, order, entries); err != nil {
		return NewError("record order", order.ID.String(), nil, err)
	}
	l.logger.Info("order routed", "order_id", order.ID, "table_id", order.TableID, "entries", len(entries))
	for _, e := range entries {
		l.emit(ctx, EntryChange{
			Type:       event.EventEntryRouted,
			OccurredAt: e.RoutedAt,
			StationID:  e.StationID,
			TableID:    e.TableID,
			Entries:    []RoutingEntry{e},
		})
	}
	return nil
}

func (l *Ledger) Start(ctx context.Context, id EntryID) (*RoutingEntry, error) {
	return l.Transition(ctx, id, TransitionStart)
}

func (l *Ledger) Complete(ctx context.Context, id EntryID) (*RoutingEntry, error) {
	return l.Transition(ctx, id, TransitionComplete)
}

func (l *Ledger) Recall(ctx context.Context, id EntryID) (*RoutingEntry, error) {
	return l.Transition(ctx, id, TransitionRecall)
}

func (l *Ledger) Bump(ctx context.Context, id EntryID) (*RoutingEntry, error) {
	return l.Transition(ctx, id, TransitionBump)
}

// Transition applies t to one entry. A state that does not allow t, or a
// concurrent write that got there first, fails with ErrConflict.
func (l *Ledger) Transition(ctx context.Context, id EntryID, t Transition) (*RoutingEntry, error) {
	ref := id.String()
	e, err := l.entries.FindByID(ctx, id)
	if err != nil {
		return nil, NewError(string(t), ref, nil, err)
	}
	expected := e.Version
	if err := e.Apply(t, l.now()); err != nil {
		return nil, err
	}
	if err := l.entries.Update(ctx, e, expected); err != nil {
		return nil, NewError(string(t), ref, nil, err)
	}

	l.logger.Info("entry transitioned", "entry_id", e.ID, "transition", t, "state", e.State().Code(), "recall_count", e.RecallCount)
	l.emit(ctx, EntryChange{
		Type:       event.EventEntryStatusChanged,
		Transition: t,
		OccurredAt: e.UpdatedAt,
		StationID:  e.StationID,
		TableID:    e.TableID,
		Entries:    []RoutingEntry{*e},
	})
	return e, nil
}

// BumpTable completes every active entry of a table in one atomic
// step. Either all entries are persisted done and announced, or none is
// and the error is returned.
func (l *Ledger) BumpTable(ctx context.Context, tableID TableID) ([]RoutingEntry, error) {
	ref := tableID.String()
	active, err := l.entries.List(ctx, EntryFilter{TableID: &tableID, Active: true})
	if err != nil {
		return nil, NewError("bump table", ref, nil, err)
	}
	if len(active) == 0 {
		return nil, Errorf("bump table", ref, ErrConflict, "table has no active entries")
	}

	now := l.now()
	expected := make(map[EntryID]int, len(active))
	bumped := make([]RoutingEntry, 0, len(active))
	for _, e := range active {
		expected[e.ID] = e.Version
		next := e.Clone()
		if err := next.Apply(TransitionBump, now); err != nil {
			return nil, NewError("bump table", ref, nil, err)
		}
		bumped = append(bumped, next)
	}

	if err := l.entries.UpdateMany(ctx, bumped, expected); err != nil {
		return nil, NewError("bump table", ref, nil, err)
	}
	SortForStation(bumped)

	l.logger.Info("table bumped", "table_id", tableID, "entries", len(bumped))
	// One message for the whole set: displays never see part of a bump.
	l.emit(ctx, EntryChange{
		Type:       event.EventTableBumped,
		Transition: TransitionBump,
		OccurredAt: now,
		TableID:    tableID,
		Entries:    bumped,
	})
	return bumped, nil
}

func (l *Ledger) Get(ctx context.Context, id EntryID) (*RoutingEntry, error) {
	e, err := l.entries.FindByID(ctx, id)
	if err != nil {
		return nil, NewError("get entry", id.String(), nil, err)
	}
	return e, nil
}

// Active returns entries matching filter that are not done, plus done
// entries still inside the retention window.
func (l *Ledger) Active(ctx context.Context, filter EntryFilter) ([]RoutingEntry, error) {
	filter.Active = true
	if filter.DoneSince == nil && l.retention > 0 {
		since := l.now().Add(-l.retention)
		filter.DoneSince = &since
	}
	entries, err := l.entries.List(ctx, filter)
	if err != nil {
		return nil, NewError("list entries", "", nil, err)
	}
	return entries, nil
}

// StationQueue returns a station's entries that still need work in
// display order.
func (l *Ledger) StationQueue(ctx context.Context, stationID StationID) ([]RoutingEntry, error) {
	entries, err := l.entries.List(ctx, EntryFilter{StationID: &stationID, Active: true})
	if err != nil {
		return nil, NewError("station queue", stationID.String(), nil, err)
	}
	SortForStation(entries)
	return entries, nil
}

// Order returns an order with its status derived from its entries.
func (l *Ledger) Order(ctx context.Context, id OrderID) (*Order, []RoutingEntry, error) {
	o, err := l.orders.FindByID(ctx, id)
	if err != nil {
		return nil, nil, NewError("get order", id.String(), nil, err)
	}
	entries, err := l.entries.List(ctx, EntryFilter{OrderID: &id})
	if err != nil {
		return nil, nil, NewError("get order", id.String(), nil, err)
	}
	o.Status = DeriveStatus(entries).Code()
	return o, entries, nil
}

func (l *Ledger) emit(ctx context.Context, change EntryChange) {
	if l.onChange != nil {
		l.onChange(change)
	}
	if l.publisher == nil {
		return
	}
	data, err := l.codec.Marshal(change)
	if err != nil {
		l.logger.Error("cannot encode entry change", "type", change.Type, "error", err)
		return
	}
	subject := event.RoutingSubject(change.StationID.String(), change.TableID.String())
	if change.StationID == (StationID{}) {
		subject = event.RoutingTableWideSubject(change.TableID.String())
	}
	if err := l.publisher.Publish(ctx, subject, data); err != nil {
		// The store is the record; displays catch up on their next resync.
		l.logger.Error("cannot publish entry change", "subject", subject, "error", err)
	}
}
