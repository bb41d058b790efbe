package bridge

import (
	"context"
	"strings"

	"github.com/loomchat/realtime/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// New creates a bridge listening on Redis pub/sub. The client handed in is
// exclusively owned by the bridge; no other component issues commands on it.
func New(cfg config.BridgeConfig, rcfg config.RedisConfig, logger zerolog.Logger) *Bridge {
	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})
	return newBridge(redisDial(client, rcfg.Prefix), cfg, logger)
}

// redisDial subscribes a dedicated pub/sub connection to the prefixed
// mutation topics and waits for subscription confirmation before reporting
// success.
func redisDial(client *redis.Client, prefix string) dialFunc {
	return func(ctx context.Context, topics []string) (listenConn, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		named := make([]string, len(topics))
		for i, t := range topics {
			named[i] = prefix + t
		}
		sub := client.Subscribe(ctx, named...)
		if _, err := sub.Receive(ctx); err != nil {
			sub.Close()
			return nil, err
		}
		return &redisConn{sub: sub, prefix: prefix}, nil
	}
}

type redisConn struct {
	sub    *redis.PubSub
	prefix string
}

func (c *redisConn) ReceiveMessage(ctx context.Context) (string, string, error) {
	msg, err := c.sub.ReceiveMessage(ctx)
	if err != nil {
		return "", "", err
	}
	return strings.TrimPrefix(msg.Channel, c.prefix), msg.Payload, nil
}

func (c *redisConn) Close() error { return c.sub.Close() }
