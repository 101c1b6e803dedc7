package migration

import (
	"github.com/parlohq/parlo/internal/config"
	entitlementdomain "github.com/parlohq/parlo/internal/entitlement/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The versioned SQL migrations target postgres. The sqlite and mysql
		// dialects are for local development, where the schema is derived
		// from the models instead.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&entitlementdomain.EntitlementRecord{},
				&entitlementdomain.EventRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
