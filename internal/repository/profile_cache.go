package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/config"
	"github.com/iliyamo/lawncare-booking/internal/model"
)

// ProfileBackend is what the cache wraps; *ProfileRepo satisfies it.
type ProfileBackend interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error)
	GetUserRole(ctx context.Context, userID string) (*model.UserRole, error)
}

// CachedProfiles is a Redis read-through cache for profile rows.  Missing
// rows are not cached.  Redis failures fall through to the backend; the
// cache never makes a lookup fail.
type CachedProfiles struct {
	backend ProfileBackend
	rdb     *redis.Client
	cfg     config.ProfileCacheConfig
	log     *zap.Logger
}

// NewCachedProfiles wraps backend.  With a nil client or a disabled config
// every call goes straight to the backend.
func NewCachedProfiles(backend ProfileBackend, rdb *redis.Client, cfg config.ProfileCacheConfig, log *zap.Logger) *CachedProfiles {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedProfiles{backend: backend, rdb: rdb, cfg: cfg, log: log}
}

func (c *CachedProfiles) enabled() bool { return c.cfg.Enabled && c.rdb != nil }

func (c *CachedProfiles) key(userID string) string { return c.cfg.Prefix + ":" + userID }

func (c *CachedProfiles) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if !c.enabled() {
		return c.backend.GetProfile(ctx, userID)
	}
	raw, err := c.rdb.Get(ctx, c.key(userID)).Bytes()
	switch {
	case err == nil:
		var p model.Profile
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return &p, nil
		}
		c.log.Warn("profile cache entry unreadable", zap.String("user_id", userID))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("profile cache get failed", zap.String("user_id", userID), zap.Error(err))
	}

	p, err := c.backend.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, p)
	return p, nil
}

// UpdateProfile writes through to the backend and evicts the entry.
func (c *CachedProfiles) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error) {
	p, err := c.backend.UpdateProfile(ctx, userID, upd)
	c.Evict(ctx, userID)
	return p, err
}

func (c *CachedProfiles) GetUserRole(ctx context.Context, userID string) (*model.UserRole, error) {
	return c.backend.GetUserRole(ctx, userID)
}

// Evict drops the cached profile of userID.
func (c *CachedProfiles) Evict(ctx context.Context, userID string) {
	if !c.enabled() {
		return
	}
	if err := c.rdb.Del(ctx, c.key(userID)).Err(); err != nil {
		c.log.Warn("profile cache evict failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (c *CachedProfiles) store(ctx context.Context, p *model.Profile) {
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	ttl := c.cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := c.rdb.Set(ctx, c.key(p.UserID), b, ttl).Err(); err != nil {
		c.log.Warn("profile cache set failed", zap.String("user_id", p.UserID), zap.Error(err))
	}
}
