package migration

import (
	"context"

	"github.com/smallbiznis/cariledger/internal/config"
	orgdomain "github.com/smallbiznis/cariledger/internal/organization/domain"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger, ref refdomain.Repository, orgs orgdomain.Service) error {
		log = log.Named("migration")
		if cfg.DBAutoMigrate {
			if err := Migrate(conn); err != nil {
				return err
			}
			log.Info("schema up to date", zap.String("dialect", conn.Dialector.Name()))
		}

		ctx := context.Background()
		if err := ref.EnsureCurrencies(ctx); err != nil {
			return err
		}

		org, err := orgs.EnsureDefault(ctx, cfg.DefaultOrgName)
		if err != nil {
			return err
		}
		log.Info("default organization ready", zap.String("org_id", org.ID), zap.String("slug", org.Slug))
		return nil
	}),
)
