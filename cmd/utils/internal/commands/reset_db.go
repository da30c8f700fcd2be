package commands

import (
	"context"
	"fmt"

	"github.com/appetiteclub/kds/internal/app"
	"github.com/appetiteclub/kds/pkg/config"
	"github.com/appetiteclub/kds/pkg/logging"
)

// ResetDB removes every station, order and routing entry - USE WITH CAUTION
func ResetDB(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	driver, _ := cfg.GetString("db.driver")
	logger.Infof("⚠️  DANGER: This will remove ALL kitchen data from %s!", driver)
	logger.Infof("⚠️  This action cannot be undone!")

	store, err := app.OpenStore(ctx, driver, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Stop(context.Background())

	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	logger.Info("Kitchen data has been removed", "driver", driver)
	return nil
}
