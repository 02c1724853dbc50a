package migrate

import (
	"context"
	"fmt"

	"github.com/dealerhub/dealer-pricing/pkg/config"
	"github.com/dealerhub/dealer-pricing/pkg/db"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
)

// MaybeRunDev migrates the schema on startup in dev when the feature flag is on.
// Postgres runs the embedded goose migrations; SQLite gets a gorm AutoMigrate of the models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "db_driver": cfg.DB.Driver})

	if !client.IsPostgres() {
		logg.Info(ctx, "auto-migrating sqlite schema")
		if err := AutoMigrate(client); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema ready")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	provider, err := NewProvider(sqlDB, "")
	if err != nil {
		return err
	}

	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, provider, "up", nil); err != nil {
		return err
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}

// AutoMigrate creates the rule tables through gorm. Only meant for SQLite.
func AutoMigrate(client *db.Client) error {
	if err := client.DB().AutoMigrate(&models.PricingRule{}, &models.PromotionPolicy{}, &models.RuleAuditEvent{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
