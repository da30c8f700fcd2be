package livesync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/appetiteclub/kds/pkg/events"
	"github.com/appetiteclub/kds/pkg/logging"
)

const queryPrefix = "q:"

// CachedReader serves entry reads through a short TTL cache. Writes
// reported through Invalidate, and changes seen on the bus, drop the
// affected keys at once.
type CachedReader struct {
	next    kitchen.EntryReader
	lists   *Cache[[]kitchen.RoutingEntry]
	singles *Cache[*kitchen.RoutingEntry]
	logger  logging.Logger
}

func NewCachedReader(next kitchen.EntryReader, ttl time.Duration, logger logging.Logger) *CachedReader {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &CachedReader{
		next:    next,
		lists:   NewCache[[]kitchen.RoutingEntry](ttl),
		singles: NewCache[*kitchen.RoutingEntry](ttl),
		logger:  logger.With("component", "CachedReader"),
	}
}

// Active reads through the cache. Callers get their own slice.
func (c *CachedReader) Active(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error) {
	key := listKey(filter)
	entries, err := c.lists.Get(ctx, key, func(ctx context.Context) ([]kitchen.RoutingEntry, error) {
		return c.next.Active(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return append([]kitchen.RoutingEntry(nil), entries...), nil
}

func (c *CachedReader) Get(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	e, err := c.singles.Get(ctx, "entry:"+id.String(), func(ctx context.Context) (*kitchen.RoutingEntry, error) {
		return c.next.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	cp := e.Clone()
	return &cp, nil
}

// Invalidate drops every key a change can affect.
func (c *CachedReader) Invalidate(change kitchen.EntryChange) {
	keys := []string{"all", "tables", "station:" + change.StationID.String(), "table:" + change.TableID.String()}
	for _, e := range change.Entries {
		keys = append(keys, "station:"+e.StationID.String(), "table:"+e.TableID.String())
		c.singles.Invalidate("entry:" + e.ID.String())
	}
	c.lists.Invalidate(keys...)
	c.lists.InvalidatePrefix(queryPrefix)
}

// InvalidateAll empties both caches, used after the bus reconnects and
// notifications may have been missed.
func (c *CachedReader) InvalidateAll() {
	c.lists.InvalidateAll()
	c.singles.InvalidateAll()
	c.logger.Info("read cache cleared")
}

// Watch invalidates on entry changes published by any process until
// ctx is cancelled.
func (c *CachedReader) Watch(ctx context.Context, sub events.Subscriber, codec event.Codec) error {
	topic := event.RoutingTopicPrefix + ".>"
	return sub.Subscribe(ctx, topic, func(ctx context.Context, msg []byte) error {
		var change kitchen.EntryChange
		if err := codec.Unmarshal(msg, &change); err != nil {
			c.logger.Error("cannot decode entry change", "error", err)
			return nil
		}
		c.Invalidate(change)
		return nil
	})
}

// listKey names the common shapes; anything else is a composite query.
func listKey(f kitchen.EntryFilter) string {
	switch {
	case isZeroFilter(f):
		return "all"
	case f.StationID != nil && f.TableID == nil && f.OrderID == nil && len(f.TableIDs) == 0 && f.DoneSince == nil && !f.Ready && f.Limit == 0:
		return "station:" + f.StationID.String()
	case f.TableID != nil && f.StationID == nil && f.OrderID == nil && len(f.TableIDs) == 0 && f.DoneSince == nil && !f.Ready && f.Limit == 0:
		return "table:" + f.TableID.String()
	}
	parts := []string{}
	if f.StationID != nil {
		parts = append(parts, "station="+f.StationID.String())
	}
	if f.TableID != nil {
		parts = append(parts, "table="+f.TableID.String())
	}
	if f.OrderID != nil {
		parts = append(parts, "order="+f.OrderID.String())
	}
	if len(f.TableIDs) > 0 {
		ids := make([]string, len(f.TableIDs))
		for i, id := range f.TableIDs {
			ids[i] = id.String()
		}
		sort.Strings(ids)
		parts = append(parts, "tables="+strings.Join(ids, ","))
	}
	if f.Ready {
		parts = append(parts, "ready")
	}
	if f.DoneSince != nil {
		parts = append(parts, "since="+f.DoneSince.UTC().Format(time.RFC3339Nano))
	}
	if f.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", f.Limit))
	}
	return queryPrefix + strings.Join(parts, ";")
}

func isZeroFilter(f kitchen.EntryFilter) bool {
	return f.StationID == nil && f.TableID == nil && f.OrderID == nil && len(f.TableIDs) == 0 && f.DoneSince == nil && !f.Ready && f.Limit == 0
}
