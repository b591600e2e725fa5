package memstoreexporter

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config defines the configuration for the in-memory store exporter.
type Config struct {
	// MaxItems bounds the ring-buffer capacity applied independently to
	// each of the traces, logs, and metrics tables.
	// Default: defaultMaxItems (1000, the same as store.DefaultConfig)
	MaxItems int `mapstructure:"max_items"`

	// FollowBufferFrames is the per-subscription change-notification
	// buffer depth before a slow Follow consumer is disconnected.
	// Default: defaultFollowBufferFrames (64)
	FollowBufferFrames int `mapstructure:"follow_buffer_frames"`

	// QueryAddr is the bind address for the query/follow HTTP and
	// websocket server (0.0.0.0:4319 form). Validate replaces an empty
	// value with the default, so the server is always started.
	// Default: :4319
	QueryAddr string `mapstructure:"query_addr"`
}

// applyEnvironmentOverrides reads well-known environment variables and
// applies them to the config, mirroring the teacher's single-pass
// override step during construction.
func (cfg *Config) applyEnvironmentOverrides() error {
	if v := strings.TrimSpace(os.Getenv("TRACEWELL_MAX_ITEMS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TRACEWELL_MAX_ITEMS %q: %w", v, err)
		}
		cfg.MaxItems = n
	}
	if v := strings.TrimSpace(os.Getenv("TRACEWELL_QUERY_ADDR")); v != "" {
		cfg.QueryAddr = v
	}
	return nil
}

// Validate checks the configuration for errors and applies defaults.
func (cfg *Config) Validate() error {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.FollowBufferFrames <= 0 {
		cfg.FollowBufferFrames = defaultFollowBufferFrames
	}
	if cfg.QueryAddr == "" {
		cfg.QueryAddr = defaultQueryAddr
	}
	return nil
}
