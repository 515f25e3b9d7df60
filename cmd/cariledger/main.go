package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/config"
	"github.com/smallbiznis/cariledger/internal/migration"
	"github.com/smallbiznis/cariledger/internal/observability"
	"github.com/smallbiznis/cariledger/internal/reconcile"
	"github.com/smallbiznis/cariledger/internal/server"
	"github.com/smallbiznis/cariledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP API plus the audit, reference, cari, ledger and organization domains
		server.Module,

		migration.Module,
		reconcile.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
