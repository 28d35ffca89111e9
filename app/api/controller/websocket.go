package controller

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/metrics"
	"github.com/heliowatt/solarstream/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, restrict to specific origins
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "announce"
	Email  string `json:"email"`  // Account identity to stream
}

// HandleWebSocket upgrades the HTTP connection and streams rate events.
//
// Protocol:
// Client sends: {"action": "announce", "email": "a@b.c"}
//
// Server sends:
// - {"type": "announced", "payload": {"email": "a@b.c"}}
// - {"type": "total_savings", "payload": {"totalSavings": 123.4}}   (on announce, then every tick)
// - {"type": "initial_rates", "payload": {"rates": [...]}}          (most recent 50, on announce)
// - {"type": "new_rate", "payload": {...}}                          (every tick)
// - {"type": "error", "payload": {"message": "..."}}
//
// A connection streams one account at a time; announcing again moves it.
// All goroutines have panic recovery to prevent crashes.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))
	metrics.ActiveSubscribers.Inc()
	defer metrics.ActiveSubscribers.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The subscriber's inbox carries both tick events published by the
	// dispatcher and direct replies from the read loop.
	sub := hub.NewSubscriber(256)
	defer c.App.Hub.Unsubscribe(sub)

	var wg sync.WaitGroup

	// Message writer with panic recovery
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.recoverConn(cancel, "writer", r.RemoteAddr)
		c.writeEvents(ctx, conn, sub)
	}()

	// Ping ticker (keep-alive) with panic recovery
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.recoverConn(cancel, "pinger", r.RemoteAddr)
		c.sendPings(ctx, conn)
	}()

	// Read messages from the client; blocks until the connection closes.
	c.readClientMessages(ctx, conn, cancel, sub)

	cancel()
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

func (c *Controller) recoverConn(cancel context.CancelFunc, role, remoteAddr string) {
	if rec := recover(); rec != nil {
		c.App.Logger.Error("Panic in WebSocket goroutine",
			zap.String("role", role),
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())),
			zap.String("remote_addr", remoteAddr))
		cancel()
	}
}

// writeEvents drains the subscriber inbox onto the wire.
func (c *Controller) writeEvents(ctx context.Context, conn *websocket.Conn, sub *hub.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.Events():
			if err := conn.WriteJSON(event); err != nil {
				c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
				return
			}
		}
	}
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// readClientMessages reads announce requests and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, sub *hub.Subscriber) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}

	// Pong resets the read deadline
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Debug("WebSocket read error", zap.Error(err))
				}
				cancel()
				return
			}

			if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
				c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
				return
			}

			switch msg.Action {
			case "announce":
				c.handleAnnounce(ctx, msg.Email, sub)
			default:
				sub.Send(hub.Event{Type: hub.EventError, Payload: map[string]string{"message": "unknown action: " + msg.Action}})
			}
		}
	}
}

// handleAnnounce binds the connection to an account's stream and replies
// with the account's current state.
func (c *Controller) handleAnnounce(ctx context.Context, email string, sub *hub.Subscriber) {
	if email == "" {
		sub.Send(hub.Event{Type: hub.EventError, Payload: map[string]string{"message": "email is required"}})
		return
	}

	// Subscribe before reading state so no tick falls between the snapshot
	// and the first live event.
	c.App.Hub.Subscribe(email, sub)
	c.App.Logger.Debug("Client announced identity", zap.String("email", email))

	acct, err := c.App.Store.GetAccount(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sub.Send(hub.Event{Type: hub.EventError, Payload: map[string]string{"message": "account not found"}})
		} else {
			c.App.Logger.Error("Failed to load account on announce", zap.String("email", email), zap.Error(err))
			sub.Send(hub.Event{Type: hub.EventError, Payload: map[string]string{"message": "failed to load account"}})
		}
		return
	}

	rates, err := c.App.Store.RecentSamples(ctx, email, initialRatesLimit)
	if err != nil {
		c.App.Logger.Error("Failed to load recent rates on announce", zap.String("email", email), zap.Error(err))
		rates = nil
	}

	sub.Send(hub.Event{Type: hub.EventAnnounced, Payload: map[string]string{"email": email}})
	sub.Send(hub.Event{Type: hub.EventTotalSavings, Payload: hub.TotalSavingsPayload{TotalSavings: acct.TotalSavings}})
	sub.Send(hub.Event{Type: hub.EventInitialRates, Payload: map[string]any{"rates": rates}})
}
