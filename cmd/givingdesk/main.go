package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/givingdesk/internal/observability"
	"github.com/smallbiznis/givingdesk/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),

		// config, store, checkout, webhook and reporting come in through server.Module
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
