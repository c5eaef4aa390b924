package api

import (
	"time"

	"github.com/FocuswithJustin/vmr2tei/core/engine"
	"github.com/FocuswithJustin/vmr2tei/internal/vmr"
)

// Config holds server configuration.
type Config struct {
	Addr              string
	RateLimitRequests int        // Requests per minute (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	AllowedOrigins    []string   // CORS and WebSocket allowed origins (empty = allow all)
	MaxBodyBytes      int64      // Request body limit
	OutputDir         string     // Content-addressed document store (empty = memory only)
	CacheEntries      int        // Converted documents kept in memory
	JobTTL            time.Duration

	// Engine is the base configuration every request starts from.
	Engine engine.Config
	// VMR fetches records for requests that name an index. Nil disables
	// fetching.
	VMR *vmr.Client
}

// Defaults applied by NewServer.
const (
	DefaultMaxBodyBytes = 32 << 20
	DefaultCacheEntries = 64
	DefaultJobTTL       = time.Hour
	DefaultBurst        = 10
)

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.CacheEntries <= 0 {
		c.CacheEntries = DefaultCacheEntries
	}
	if c.JobTTL <= 0 {
		c.JobTTL = DefaultJobTTL
	}
	if c.RateLimitRequests > 0 && c.RateLimitBurst <= 0 {
		c.RateLimitBurst = DefaultBurst
	}
}
