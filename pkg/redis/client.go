package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/utils"
)

const channelPrefix = "solarstream"

// Client wraps Redis Pub/Sub to mirror simulation events across instances.
// One instance runs the dispatcher and mirrors every published event; every
// instance bridges the mirrored stream back into its local hub, skipping its
// own echoes.
type Client struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
}

// envelope is the wire form of a mirrored event.
type envelope struct {
	Origin  string          `json:"origin"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewClient creates a Redis client using environment variables:
// REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("REDIS_HOST", "localhost")
	port := utils.Env("REDIS_PORT", "6379")
	password := utils.Env("REDIS_PASSWORD", "")
	db := utils.EnvInt("REDIS_DB", 0)

	addr := fmt.Sprintf("%s:%s", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	instanceID := uuid.NewString()
	logger.Info("connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", db),
		zap.String("instance_id", instanceID))

	return &Client{client: rdb, logger: logger, instanceID: instanceID}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error { return c.client.Close() }

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Channel returns the Pub/Sub channel carrying one identity's events.
func Channel(identity string) string {
	return fmt.Sprintf("%s:%s:events", channelPrefix, identity)
}

// IdentityFromChannel extracts the account identity from a channel name,
// returning "" for unrecognized names.
func IdentityFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != channelPrefix || parts[2] != "events" {
		return ""
	}
	return parts[1]
}

// Mirror publishes event on the identity's channel. Best-effort: failures
// are logged, never returned, so a Redis outage cannot stall the tick loop.
func (c *Client) Mirror(ctx context.Context, identity string, event hub.Event) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		c.logger.Warn("failed to encode mirrored event", zap.Error(err))
		return
	}
	body, err := json.Marshal(envelope{Origin: c.instanceID, Type: event.Type, Payload: payload})
	if err != nil {
		c.logger.Warn("failed to encode mirrored event", zap.Error(err))
		return
	}
	if err := c.client.Publish(ctx, Channel(identity), body).Err(); err != nil {
		c.logger.Warn("failed to mirror event to Redis",
			zap.String("identity", identity),
			zap.Error(err))
	}
}

// Bridge subscribes to every identity's channel and republishes events from
// other instances into the local hub. It blocks until ctx is cancelled.
func (c *Client) Bridge(ctx context.Context, h *hub.Hub) {
	pattern := Channel("*")
	pubsub := c.client.PSubscribe(ctx, pattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.logger.Error("error closing Redis subscription", zap.Error(err))
		}
	}()

	c.logger.Info("bridging Redis events into local hub", zap.String("pattern", pattern))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				c.logger.Warn("Redis bridge channel closed")
				return
			}
			identity := IdentityFromChannel(msg.Channel)
			if identity == "" {
				continue
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				c.logger.Warn("failed to decode mirrored event",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			if env.Origin == c.instanceID {
				// Our own mirror; the local hub already delivered it.
				continue
			}
			h.Publish(identity, hub.Event{Type: env.Type, Payload: env.Payload})
		}
	}
}
