package main

import (
	"flag"
	"os"
	"time"

	"github.com/admeshlabs/mediation-bridge/internal/config"
	"github.com/admeshlabs/mediation-bridge/internal/partner/sim"
)

// ServerConfig holds all server configuration
type ServerConfig struct {
	// Server
	Port        string
	LoadTimeout time.Duration
	ShowTimeout time.Duration

	// Partner credentials
	AppID  string
	AppKey string

	// Database
	DatabaseConfig *DatabaseConfig

	// Redis
	RedisURL string

	// Simulated partner behavior
	PartnerLatency  time.Duration
	PartnerFillRate float64
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ParseConfig parses configuration from flags and environment variables
func ParseConfig() *ServerConfig {
	// Parse flags with environment variable fallbacks
	port := flag.String("port", getEnvOrDefault("BRIDGE_PORT", "8080"), "Server port")
	loadTimeout := flag.Duration("load-timeout", config.DefaultLoadTimeout, "Maximum time to wait for a load result")
	showTimeout := flag.Duration("show-timeout", config.DefaultShowTimeout, "Maximum time to wait for a show result")
	partnerLatency := flag.Duration("partner-latency", 50*time.Millisecond, "Simulated partner callback latency")
	partnerFill := flag.Float64("partner-fill-rate", 1.0, "Simulated partner fill rate (0.0-1.0)")
	flag.Parse()

	cfg := &ServerConfig{
		Port:            *port,
		LoadTimeout:     *loadTimeout,
		ShowTimeout:     *showTimeout,
		AppID:           os.Getenv("PARTNER_APP_ID"),
		AppKey:          os.Getenv("PARTNER_APP_KEY"),
		RedisURL:        os.Getenv("REDIS_URL"),
		PartnerLatency:  *partnerLatency,
		PartnerFillRate: *partnerFill,
	}

	// Parse database config if DB_HOST is set
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.DatabaseConfig = &DatabaseConfig{
			Host:     dbHost,
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "bridge"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "bridge"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		}
	}

	return cfg
}

// ToPartnerConfig converts ServerConfig to the simulated partner config
func (c *ServerConfig) ToPartnerConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Latency = c.PartnerLatency
	cfg.FillRate = c.PartnerFillRate
	return cfg
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
