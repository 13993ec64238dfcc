// Package config provides shared configuration constants for the bridge
package config

import "time"

// Server timeout defaults
const (
	// ServerReadTimeout is the maximum duration for reading the entire request
	ServerReadTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration before timing out writes of the response
	ServerWriteTimeout = 30 * time.Second

	// ServerIdleTimeout is the maximum time to wait for the next request when keep-alives are enabled
	ServerIdleTimeout = 120 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

// Dispatch defaults
const (
	// DefaultLoadTimeout bounds a single load request; the partner either
	// answers within this window or the await is abandoned
	DefaultLoadTimeout = 10 * time.Second

	// DefaultShowTimeout bounds a single fullscreen show request
	DefaultShowTimeout = 15 * time.Second
)

// Size limiting defaults
const (
	// DefaultMaxBodySize is the default maximum request body size (1MB)
	DefaultMaxBodySize = 1024 * 1024
)
