// Package config describes the HTTP route table the router builds from:
// which services are enabled, what endpoints they expose, and which
// middleware wraps the mux. Trimmed of the firewall/session
// app-settings an operator-editable JSON file would otherwise hold —
// this agent has no equivalent operator surface, so the route table is
// built in Go by internal/httpapi instead of unmarshaled from disk.
package config

import "sync"

// EndpointConfig represents a single endpoint configuration
type EndpointConfig struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Handler     string   `json:"handler"`
	Description string   `json:"description"`
}

// ServiceConfig represents a service configuration
type ServiceConfig struct {
	Prefix    string           `json:"prefix"`
	Enabled   bool             `json:"enabled"`
	Endpoints []EndpointConfig `json:"endpoints"`
}

// CORSConfig represents CORS middleware configuration
type CORSConfig struct {
	Enabled      bool     `json:"enabled"`
	AllowOrigins []string `json:"allowOrigins"`
	AllowMethods []string `json:"allowMethods"`
	AllowHeaders []string `json:"allowHeaders"`
}

// LoggingConfig represents logging middleware configuration
type LoggingConfig struct {
	Enabled bool   `json:"enabled"`
	Format  string `json:"format"`
}

// MiddlewareConfig represents all middleware configurations
type MiddlewareConfig struct {
	CORS    CORSConfig    `json:"cors"`
	Logging LoggingConfig `json:"logging"`
}

// Config represents the complete endpoints configuration. Unlike the
// teacher, this agent has no external routing config file: internal/httpapi
// builds one Config literal in Go describing its own fixed route table,
// since the route set is small and part of the API surface itself
// rather than operator-tunable.
type Config struct {
	Version    string                   `json:"version"`
	Services   map[string]ServiceConfig `json:"services"`
	Middleware MiddlewareConfig         `json:"middleware"`
}

var (
	config     *Config
	configOnce sync.Once
)

// Set installs cfg as the process-wide routing configuration. Safe to
// call once at startup; later calls are no-ops.
func Set(cfg *Config) {
	configOnce.Do(func() { config = cfg })
}

// Get returns the loaded configuration
func Get() *Config {
	return config
}

// GetService returns a specific service configuration
func GetService(name string) *ServiceConfig {
	if config == nil {
		return nil
	}
	if svc, ok := config.Services[name]; ok {
		return &svc
	}
	return nil
}

// IsServiceEnabled checks if a service is enabled
func IsServiceEnabled(name string) bool {
	svc := GetService(name)
	return svc != nil && svc.Enabled
}
