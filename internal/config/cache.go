package config

import "time"

// ProfileCacheConfig controls the Redis read-through cache in front of the
// profiles table.  Entries are evicted on role.changed events and on every
// profile write, so TTL only bounds staleness from out-of-band edits.
type ProfileCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadProfileCacheConfig reads PROFILE_CACHE_ENABLED, PROFILE_CACHE_TTL and
// PROFILE_CACHE_PREFIX.
func LoadProfileCacheConfig() ProfileCacheConfig {
	c := ProfileCacheConfig{
		Enabled: envBool("PROFILE_CACHE_ENABLED", true),
		TTL:     envDur("PROFILE_CACHE_TTL", time.Minute),
		Prefix:  envStr("PROFILE_CACHE_PREFIX", "profile"),
	}
	if c.TTL <= 0 {
		c.TTL = time.Minute
	}
	return c
}
