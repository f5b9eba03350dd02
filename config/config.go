// Package config loads and validates the collector's process configuration
// from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every environment-derived setting the collector needs at
// startup. There is no file-based configuration: the process is meant to be
// started once, configured entirely through its environment, and run until
// signalled to stop.
type Config struct {
	Port int

	PushAPIKey  string
	PushServer  string
	PushEnabled bool

	// PushConfigured is true iff at least one of the three LIVEONE_* values
	// was set. It is distinct from PushEnabled: a fully valid, disabled
	// configuration is still "configured".
	PushConfigured bool

	// Latitude/Longitude are optional; when both are present the HTTP
	// surface attaches a supplementary sun-position block to /api/status.
	Latitude   float64
	Longitude  float64
	HasSunInfo bool
}

const defaultPort = 8080

// DefaultConfig returns a Config with no push client and the default port.
// Used by tests and as the baseline before environment overrides are
// applied.
func DefaultConfig() *Config {
	return &Config{Port: defaultPort}
}

// Load builds a Config from the process environment. It never fails on a
// missing or malformed push configuration — that is recorded on the
// returned Config and surfaced by ValidatePush — but it does fail if PORT is
// set to something that isn't a positive integer.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("config: PORT must be a positive integer, got %q", portStr)
		}
		cfg.Port = port
	}

	apiKey := os.Getenv("LIVEONE_API_KEY")
	server := os.Getenv("LIVEONE_SERVER")
	enabledStr := os.Getenv("LIVEONE_ENABLED")

	if apiKey != "" || server != "" || enabledStr != "" {
		cfg.PushConfigured = true
		cfg.PushAPIKey = apiKey
		cfg.PushServer = server
		cfg.PushEnabled = enabledStr == "true"
	}

	latStr := os.Getenv("LIVEONE_LATITUDE")
	lonStr := os.Getenv("LIVEONE_LONGITUDE")
	if latStr != "" && lonStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lon, errLon := strconv.ParseFloat(lonStr, 64)
		if errLat == nil && errLon == nil {
			cfg.Latitude = lat
			cfg.Longitude = lon
			cfg.HasSunInfo = true
		}
	}

	return cfg, nil
}

// ValidatePush checks the three LIVEONE_* push settings per the
// all-or-nothing rule: if none are set the client is silently absent; if
// any is set, all three must be present and individually valid.
func (c *Config) ValidatePush() []error {
	if !c.PushConfigured {
		return nil
	}

	var errs []error

	if c.PushAPIKey == "" || !strings.HasPrefix(c.PushAPIKey, "fr_") {
		errs = append(errs, fmt.Errorf("LIVEONE_API_KEY must be a non-empty string starting with \"fr_\""))
	}

	lowerServer := strings.ToLower(c.PushServer)
	if c.PushServer == "" || !(strings.HasPrefix(lowerServer, "http://") || strings.HasPrefix(lowerServer, "https://")) {
		errs = append(errs, fmt.Errorf("LIVEONE_SERVER must be a non-empty string starting with http:// or https://"))
	}

	rawEnabled := os.Getenv("LIVEONE_ENABLED")
	if rawEnabled != "true" && rawEnabled != "false" {
		errs = append(errs, fmt.Errorf("LIVEONE_ENABLED must be exactly \"true\" or \"false\", got %q", rawEnabled))
	}

	return errs
}

// PushURL is the effective push endpoint given a valid configuration.
func (c *Config) PushURL() string {
	return strings.TrimRight(c.PushServer, "/") + "/api/push/fronius"
}
