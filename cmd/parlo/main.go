package main

import (
	"hash/fnv"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/parlohq/parlo/internal/billing"
	"github.com/parlohq/parlo/internal/clock"
	"github.com/parlohq/parlo/internal/config"
	"github.com/parlohq/parlo/internal/entitlement"
	"github.com/parlohq/parlo/internal/locking"
	"github.com/parlohq/parlo/internal/logger"
	"github.com/parlohq/parlo/internal/migration"
	"github.com/parlohq/parlo/internal/observability/metrics"
	"github.com/parlohq/parlo/internal/server"
	"github.com/parlohq/parlo/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		metrics.Module,
		locking.Module,

		// Functional domains
		entitlement.Module,
		billing.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the event id generator. The node id is derived
// from the hostname so replicas behind the same service name do not mint
// colliding ids.
func RegisterSnowflake() (*snowflake.Node, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "parlo"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(hostname))
	return snowflake.NewNode(int64(h.Sum32() % 1024))
}
