package config

import "time"

// Pipeline defaults.
const (
	DefaultGrammar    = "sql"
	DefaultDebounce   = 300 * time.Millisecond
	DefaultSnippetMax = 50
	// DefaultCacheBytes bounds the projection cache; zero disables it.
	DefaultCacheBytes = 16 << 20
)

// Server defaults.
const (
	DefaultServerHost            = "127.0.0.1"
	DefaultServerPort            = 8080
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerIdleTimeout     = 60 * time.Second
	DefaultServerMaxMessageBytes = 1 << 20 // 1 MiB.
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Telemetry defaults.
const (
	DefaultSampleRatio        = 1.0
	DefaultShutdownTimeoutSec = 5
)
