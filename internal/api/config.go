package api

import "time"

// Config holds server configuration.
type Config struct {
	Addr            string        // Listen address, e.g. ":8080"
	Versions        []string      // Translations served and prewarmed (empty = any valid id)
	DefaultVersion  string        // Translation a new reader session opens
	AllowedOrigins  []string      // CORS and WebSocket origins (empty = allow all)
	ShutdownTimeout time.Duration // Grace period for in-flight requests
	BuildVersion    string        // Reported by /health
}

// DefaultShutdownTimeout is used when Config.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 10 * time.Second

func (c Config) defaultVersion() string {
	if c.DefaultVersion != "" {
		return c.DefaultVersion
	}
	if len(c.Versions) > 0 {
		return c.Versions[0]
	}
	return ""
}
