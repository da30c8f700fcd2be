package commands

import (
	"context"
	"fmt"

	"github.com/appetiteclub/kds/cmd/utils/internal/seeding"
	"github.com/appetiteclub/kds/internal/app"
	"github.com/appetiteclub/kds/pkg/config"
	"github.com/appetiteclub/kds/pkg/logging"
)

// SeedDemo creates the demo stations and routes the demo orders through
// the dispatcher, so running displays receive them live.
func SeedDemo(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	logger.Info("Starting demo seeding process...")

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer a.Shutdown(context.Background())

	placed := 0
	for _, order := range seeding.Orders(seeding.DemoTables()) {
		entries, err := a.Dispatcher().Place(ctx, order)
		if err != nil {
			return fmt.Errorf("place demo order for %s: %w", order.TableLabel, err)
		}
		placed += len(entries)
		logger.Info("Demo order placed", "table", order.TableLabel, "seat", order.SeatLabel, "entries", len(entries))
	}

	logger.Info("Kitchen demo seeds applied successfully", "entries", placed)
	return nil
}
