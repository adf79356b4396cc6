package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgerbridge/internal/account"
	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	"github.com/smallbiznis/ledgerbridge/internal/migration"
	"github.com/smallbiznis/ledgerbridge/internal/observability"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline"
	"github.com/smallbiznis/ledgerbridge/internal/providers/pdf"
	"github.com/smallbiznis/ledgerbridge/internal/ratelimit"
	"github.com/smallbiznis/ledgerbridge/internal/server"
	"github.com/smallbiznis/ledgerbridge/internal/transform"
	"github.com/smallbiznis/ledgerbridge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		offset.Module,
		account.Module,
		transform.Module,
		holded.Module,
		cegid.Module,
		pdf.Module,
		ratelimit.Module,
		pipeline.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
