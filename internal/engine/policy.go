package engine

import (
	"fmt"
	"strings"
	"time"
)

// CacheMode controls when a statement's result is written to the statement
// cache.
type CacheMode string

const (
	CacheOff  CacheMode = "off"
	CacheAll  CacheMode = "all"
	CacheSlow CacheMode = "slow"
)

const (
	defaultCacheExpiry  = 60 * time.Minute
	defaultSlowThresold = 15 * time.Second

	// RunCacheTTL is the fixed lifetime of run-cache entries. The run cache
	// exists so an async caller can poll for a result shortly after kicking
	// off execution, not for long-term reuse.
	RunCacheTTL = 30 * time.Second
)

func ParseCacheMode(raw string) (CacheMode, error) {
	switch CacheMode(strings.ToLower(strings.TrimSpace(raw))) {
	case CacheOff, "":
		return CacheOff, nil
	case CacheAll:
		return CacheAll, nil
	case CacheSlow:
		return CacheSlow, nil
	default:
		return "", fmt.Errorf("unknown cache mode %q", raw)
	}
}

// CacheConfig is the effective statement-cache configuration of a data
// source, resolved once at construction.
type CacheConfig struct {
	Mode          CacheMode
	Expiry        time.Duration
	SlowThreshold time.Duration
}

func resolveCacheConfig(mode CacheMode, expiry, slowThreshold time.Duration) CacheConfig {
	if expiry <= 0 {
		expiry = defaultCacheExpiry
	}
	if slowThreshold <= 0 {
		slowThreshold = defaultSlowThresold
	}
	return CacheConfig{Mode: mode, Expiry: expiry, SlowThreshold: slowThreshold}
}

// Readable reports whether a cache lookup should hit the store at all.
// Off-mode and explicit refreshes bypass the store entirely.
func (c CacheConfig) Readable(refresh bool) bool {
	return c.Mode != CacheOff && !refresh
}

// ShouldCache decides statement-cache eligibility from the observed
// execution duration and error state.
func (c CacheConfig) ShouldCache(duration time.Duration, failed bool) bool {
	if failed {
		return false
	}
	switch c.Mode {
	case CacheAll:
		return true
	case CacheSlow:
		return duration >= c.SlowThreshold
	default:
		return false
	}
}
