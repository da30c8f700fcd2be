package tables

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
)

// Scheduler coalesces work per key. A nil Scheduler runs work inline.
type Scheduler interface {
	Schedule(key string, fn func())
}

type ProjectorDeps struct {
	Reader     kitchen.EntryReader
	Aggregator *Aggregator
	Subscriber events.Subscriber
	Publisher  events.Publisher
	Codec      event.Codec
	Scheduler  Scheduler
	Now        func() time.Time
	Logger     logging.Logger
}

// Projector keeps table groups current: every entry change triggers a
// rebuild of the affected table from the ledger, published on the
// table's subject.
type Projector struct {
	reader     kitchen.EntryReader
	aggregator *Aggregator
	subscriber events.Subscriber
	publisher  events.Publisher
	codec      event.Codec
	scheduler  Scheduler
	now        func() time.Time
	logger     logging.Logger
}

func NewProjector(deps ProjectorDeps) *Projector {
	if deps.Logger == nil {
		deps.Logger = logging.NewNoopLogger()
	}
	if deps.Codec == nil {
		deps.Codec = event.JSON
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Projector{
		reader:     deps.Reader,
		aggregator: deps.Aggregator,
		subscriber: deps.Subscriber,
		publisher:  deps.Publisher,
		codec:      deps.Codec,
		scheduler:  deps.Scheduler,
		now:        deps.Now,
		logger:     deps.Logger.With("component", "Projector"),
	}
}

// Start subscribes to entry changes until ctx is cancelled.
func (p *Projector) Start(ctx context.Context) error {
	if p.subscriber == nil {
		return fmt.Errorf("projector has no subscriber")
	}
	topic := event.RoutingTopicPrefix + ".>"
	if err := p.subscriber.Subscribe(ctx, topic, p.handleChange); err != nil {
		return fmt.Errorf("cannot subscribe to %s: %w", topic, err)
	}
	p.logger.Info("projector subscribed", "topic", topic)
	return nil
}

func (p *Projector) handleChange(ctx context.Context, msg []byte) error {
	var change kitchen.EntryChange
	if err := p.codec.Unmarshal(msg, &change); err != nil {
		p.logger.Error("cannot decode entry change", "error", err)
		return nil
	}
	tableID := change.TableID
	if p.scheduler == nil {
		p.Refresh(ctx, tableID)
		return nil
	}
	p.scheduler.Schedule("table:"+tableID.String(), func() {
		p.Refresh(context.Background(), tableID)
	})
	return nil
}

// Refresh rebuilds one table group and publishes the result.
func (p *Projector) Refresh(ctx context.Context, tableID kitchen.TableID) {
	entries, err := p.reader.Active(ctx, kitchen.EntryFilter{TableID: &tableID})
	if err != nil {
		p.logger.Error("cannot read table entries", "table_id", tableID, "error", err)
		return
	}

	now := p.now()
	change := GroupChange{TableID: tableID, OccurredAt: now}
	if group, ok := p.aggregator.BuildTable(tableID, entries, now); ok {
		change.Type = event.EventTableUpdated
		change.Group = group
	} else {
		change.Type = event.EventTableRemoved
	}

	if p.publisher == nil {
		return
	}
	data, err := p.codec.Marshal(change)
	if err != nil {
		p.logger.Error("cannot encode table change", "table_id", tableID, "error", err)
		return
	}
	if err := p.publisher.Publish(ctx, event.TableSubject(tableID.String()), data); err != nil {
		p.logger.Error("cannot publish table change", "table_id", tableID, "error", err)
	}
}
