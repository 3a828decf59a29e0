package config

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig locates the Redis server shared by the rate limiter and the
// profile cache.
//
//   REDIS_ADDR      – host:port (default localhost:6379)
//   REDIS_HOST/PORT – override REDIS_ADDR when both are set
//   REDIS_PASSWORD  – optional
//   REDIS_DB        – database number (default 0)
//   REDIS_TLS       – dial with TLS
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// LoadRedisConfig reads REDIS_*.
func LoadRedisConfig() RedisConfig {
	c := RedisConfig{
		Addr:     envStr("REDIS_ADDR", "localhost:6379"),
		Password: envStr("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
		TLS:      envBool("REDIS_TLS", false),
	}
	if h, p := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); h != "" && p != "" {
		c.Addr = net.JoinHostPort(h, p)
	}
	return c
}

func (c RedisConfig) options() *redis.Options {
	o := &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
	if c.TLS {
		host, _, err := net.SplitHostPort(c.Addr)
		if err != nil {
			host = c.Addr
		}
		o.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return o
}

// NewRedisClient connects using LoadRedisConfig.  It returns nil when the
// server does not answer a ping within 2s; callers treat a nil client as
// "rate limiting and profile cache off".
func NewRedisClient(log *zap.Logger) *redis.Client {
	cfg := LoadRedisConfig()
	client := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, rate limiting and profile cache disabled",
			zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}
