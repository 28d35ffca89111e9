package controller

import (
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/heliowatt/solarstream/app/api/types"
	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/store"
)

func newTestApp(t *testing.T) (*types.App, *mux.Router) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	app := &types.App{
		Store:     store.NewMemory(),
		Hub:       hub.New(logger),
		JWTSecret: []byte("test-secret"),
		Logger:    logger,
	}
	router, err := NewController(app).NewRouter()
	require.NoError(t, err)
	return app, router
}
