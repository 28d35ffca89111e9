package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/app/api/types"
	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/logging"
	"github.com/heliowatt/solarstream/pkg/redis"
	"github.com/heliowatt/solarstream/pkg/sim"
	"github.com/heliowatt/solarstream/pkg/store"
	"github.com/heliowatt/solarstream/pkg/utils"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	st, storeErr := store.New(ctx, logger)
	if storeErr != nil {
		logger.Fatal("Unable to initialize account store", zap.Error(storeErr))
	}

	// Redis mirroring is optional; without it events fan out in-process only.
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - cross-instance events will be disabled",
				zap.Error(err))
			redisClient = nil
		}
	} else {
		logger.Info("Redis disabled - events fan out to local subscribers only")
	}

	h := hub.New(logger)

	opts := sim.Options{
		TickInterval:   utils.EnvDuration("TICK_INTERVAL", sim.DefaultTickInterval),
		ModeInterval:   utils.EnvDuration("MODE_TOGGLE_INTERVAL", sim.DefaultModeInterval),
		MaxParallelism: utils.EnvInt("DISPATCH_MAX_PARALLELISM", 0),
	}
	if redisClient != nil {
		opts.Mirror = redisClient
	}
	dispatcher := sim.NewDispatcher(logger, st, h, opts)

	reconciler := sim.NewReconciler(logger, st)
	reconcileCron, cronErr := reconciler.Schedule(ctx, utils.Env("RECONCILE_CRON", "@every 1m"))
	if cronErr != nil {
		logger.Fatal("Unable to schedule aggregate reconciler", zap.Error(cronErr))
	}

	app := &types.App{
		Store:         st,
		Hub:           h,
		Dispatcher:    dispatcher,
		ReconcileCron: reconcileCron,
		RedisClient:   redisClient,
		JWTSecret:     jwtSecret(logger),
		Logger:        logger,
	}

	return app
}

func jwtSecret(logger *zap.Logger) []byte {
	if secret := utils.Env("JWT_SECRET", ""); secret != "" {
		return []byte(secret)
	}
	// Ephemeral secret: sessions won't survive a restart.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logger.Fatal("Unable to generate session secret", zap.Error(err))
	}
	logger.Warn("JWT_SECRET not set, using ephemeral session secret")
	return []byte(hex.EncodeToString(buf))
}
