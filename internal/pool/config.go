package pool

import (
	"time"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Config sizes and ages a Pool.
type Config struct {
	// MaxSize is the number of connections that may be checked out at once.
	MaxSize int `koanf:"max_size" json:"max_size"`

	// MinIdle is the number of idle connections kept through idle-timeout
	// eviction, and the target of Warm.
	MinIdle int `koanf:"min_idle" json:"min_idle"`

	// Timeout bounds how long Get waits for a free slot.
	Timeout time.Duration `koanf:"timeout" json:"timeout"`

	// MaxLifetime closes connections older than this when they are next
	// touched. Zero disables the check.
	MaxLifetime time.Duration `koanf:"max_lifetime" json:"max_lifetime"`

	// IdleTimeout closes connections left idle longer than this. Zero
	// disables the check.
	IdleTimeout time.Duration `koanf:"idle_timeout" json:"idle_timeout"`
}

// DefaultConfig returns a Config suitable for a single-process service.
func DefaultConfig() Config {
	return Config{
		MaxSize:     10,
		MinIdle:     1,
		Timeout:     30 * time.Second,
		MaxLifetime: time.Hour,
		IdleTimeout: 10 * time.Minute,
	}
}

// Validate checks, in order, max_size > 0, min_idle <= max_size and
// timeout > 0.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return vecerr.Config("pool.max_size", "must be greater than 0, got %d", c.MaxSize)
	}
	if c.MinIdle < 0 {
		return vecerr.Config("pool.min_idle", "must not be negative, got %d", c.MinIdle)
	}
	if c.MinIdle > c.MaxSize {
		return vecerr.Config("pool.min_idle", "%d exceeds max_size %d", c.MinIdle, c.MaxSize)
	}
	if c.Timeout <= 0 {
		return vecerr.Config("pool.timeout", "must be greater than 0, got %s", c.Timeout)
	}
	if c.MaxLifetime < 0 {
		return vecerr.Config("pool.max_lifetime", "must not be negative, got %s", c.MaxLifetime)
	}
	if c.IdleTimeout < 0 {
		return vecerr.Config("pool.idle_timeout", "must not be negative, got %s", c.IdleTimeout)
	}
	return nil
}
