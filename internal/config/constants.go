package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. Streaming routes (SSE, WebSocket) are exempt from
// ServerRequestTimeout and the write timeout.
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// WebSocket connection tuning
const (
	WSWriteTimeout   = 10 * time.Second
	WSPongTimeout    = 60 * time.Second
	WSPingInterval   = 50 * time.Second
	WSMaxMessageSize = 4096
)
