package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cariledger/internal/audit"
	"github.com/smallbiznis/cariledger/internal/cari"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/config"
	"github.com/smallbiznis/cariledger/internal/ledger"
	"github.com/smallbiznis/cariledger/internal/observability"
	"github.com/smallbiznis/cariledger/internal/organization"
	"github.com/smallbiznis/cariledger/internal/reconcile"
	"github.com/smallbiznis/cariledger/pkg/db"
	"go.uber.org/fx"
)

// Runs the drift reconciliation job without the HTTP API. Schema migration
// is left to the API process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the reconciler
		audit.Module,
		cari.Module,
		ledger.Module,
		organization.Module,

		// No server module!
		reconcile.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
