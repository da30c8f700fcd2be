package app

import (
	"context"
	"fmt"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/memory"
	"github.com/appetiteclub/kds/internal/mongo"
	"github.com/appetiteclub/kds/internal/postgres"
	"github.com/appetiteclub/kds/pkg/config"
	"github.com/appetiteclub/kds/pkg/logging"
)

// Store is the system of record selected by db.driver.
type Store struct {
	Driver   string
	Stations kitchen.StationRepository
	Orders   kitchen.OrderRepository
	Entries  kitchen.EntryRepository

	stop  func(ctx context.Context) error
	reset func(ctx context.Context) error
}

// OpenStore connects to the configured driver: mongo, postgres or memory.
func OpenStore(ctx context.Context, driver string, cfg *config.Config, logger logging.Logger) (*Store, error) {
	switch driver {
	case "mongo", "":
		s := mongo.NewStore(cfg, logger)
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		return &Store{
			Driver:   "mongo",
			Stations: s.Stations(),
			Orders:   s.Orders(),
			Entries:  s.Entries(),
			stop:     s.Stop,
			reset:    s.Reset,
		}, nil

	case "postgres":
		s := postgres.NewStore(cfg, logger)
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		return &Store{
			Driver:   "postgres",
			Stations: s.Stations(),
			Orders:   s.Orders(),
			Entries:  s.Entries(),
			stop:     s.Stop,
			reset:    s.Reset,
		}, nil

	case "memory":
		s := memory.NewStore()
		return &Store{
			Driver:   "memory",
			Stations: s.Stations(),
			Orders:   s.Orders(),
			Entries:  s.Entries(),
			reset:    s.Reset,
		}, nil

	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}

func (s *Store) Stop(ctx context.Context) error {
	if s == nil || s.stop == nil {
		return nil
	}
	return s.stop(ctx)
}

// Reset removes all kitchen data.
func (s *Store) Reset(ctx context.Context) error {
	return s.reset(ctx)
}

// RunSeeds applies seeds in order. Seeds are idempotent, so they run on
// every start when enabled.
func RunSeeds(ctx context.Context, seeds []kitchen.Seed, logger logging.Logger) error {
	for _, seed := range seeds {
		logger.Info("applying seed", "seed", seed.ID, "description", seed.Description)
		if err := seed.Run(ctx); err != nil {
			return fmt.Errorf("seed %s: %w", seed.ID, err)
		}
	}
	return nil
}
