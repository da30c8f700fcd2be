package tables

import (
	"context"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
)

// Service answers table-level reads and the bulk bump.
type Service struct {
	reader     kitchen.EntryReader
	ledger     *kitchen.Ledger
	aggregator *Aggregator
	now        func() time.Time
}

func NewService(reader kitchen.EntryReader, ledger *kitchen.Ledger, aggregator *Aggregator) *Service {
	return &Service{
		reader:     reader,
		ledger:     ledger,
		aggregator: aggregator,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Groups returns the current table groups, restricted to tableIDs when
// any are given.
func (s *Service) Groups(ctx context.Context, tableIDs []kitchen.TableID) ([]TableGroup, error) {
	entries, err := s.reader.Active(ctx, kitchen.EntryFilter{})
	if err != nil {
		return nil, err
	}
	groups := s.aggregator.Build(entries, s.now())
	if len(tableIDs) == 0 {
		return groups, nil
	}
	keep := make(map[kitchen.TableID]bool, len(tableIDs))
	for _, id := range tableIDs {
		keep[id] = true
	}
	out := groups[:0]
	for _, g := range groups {
		if keep[g.TableID] {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Service) Group(ctx context.Context, tableID kitchen.TableID) (*TableGroup, error) {
	entries, err := s.reader.Active(ctx, kitchen.EntryFilter{TableID: &tableID})
	if err != nil {
		return nil, err
	}
	group, ok := s.aggregator.BuildTable(tableID, entries, s.now())
	if !ok {
		return nil, kitchen.NewError("get table", tableID.String(), kitchen.ErrNotFound, nil)
	}
	return group, nil
}

// BumpTable completes every active entry of the table atomically and
// returns the bumped entries.
func (s *Service) BumpTable(ctx context.Context, tableID kitchen.TableID) ([]kitchen.RoutingEntry, error) {
	return s.ledger.BumpTable(ctx, tableID)
}
