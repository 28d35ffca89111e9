package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/app/api/controller"
	"github.com/heliowatt/solarstream/app/api/types"
	"github.com/heliowatt/solarstream/pkg/utils"
)

// NewServer wires the router into the app's HTTP server.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3001")

	app.Server = &http.Server{Addr: addr, Handler: controller.WithCORS(router)}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
