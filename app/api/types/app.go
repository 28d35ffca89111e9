package types

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/redis"
	"github.com/heliowatt/solarstream/pkg/sim"
	"github.com/heliowatt/solarstream/pkg/store"
)

type App struct {
	// Store holds accounts, sample histories and cached savings totals.
	Store store.Store
	// Hub is the in-process subscription registry.
	Hub *hub.Hub
	// Dispatcher advances the simulation once per tick.
	Dispatcher *sim.Dispatcher
	// ReconcileCron re-derives savings totals on a schedule.
	ReconcileCron *cron.Cron
	// RedisClient mirrors events across instances; nil when disabled.
	RedisClient *redis.Client
	// JWTSecret signs login session tokens.
	JWTSecret []byte
	// Zap Logger
	Logger *zap.Logger
	// Server is the HTTP server handling queries and WebSocket upgrades.
	Server *http.Server
}

// Start runs the simulation loops and the HTTP server, then blocks until
// ctx is cancelled and everything has shut down.
func (a *App) Start(ctx context.Context) {
	go a.Dispatcher.Run(ctx)
	if a.RedisClient != nil {
		go a.RedisClient.Bridge(ctx, a.Hub)
	}
	go func() { _ = a.Server.ListenAndServe() }()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.ReconcileCron != nil {
		<-a.ReconcileCron.Stop().Done()
	}

	_ = a.Server.Shutdown(shutdownCtx)

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("failed to close Redis connection", zap.Error(err))
		}
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("failed to close store", zap.Error(err))
	}

	a.Logger.Info("solarstream stopped")
}
