package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// Config holds all configuration parameters for the REST server.
type Config struct {
	// HTTP api settings
	Endpoint     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownTimeout bounds how long a graceful shutdown waits for
	// in-flight requests
	ShutdownTimeout time.Duration

	// Rate limiting (requests per second, 0 disables limiting)
	RateLimit float64
	RateBurst int

	// Change notification settings (empty NATSUrl disables publishing)
	NATSUrl     string
	NATSSubject string
}

// DefaultConfig returns the configuration the server starts with when no
// flags are given.
func DefaultConfig() Config {
	return Config{
		Endpoint:        ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       0,
		RateBurst:       0,
		NATSSubject:     "skv.events",
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// HTTP settings
	addSection("REST Server")
	addField("Endpoint", c.Endpoint)
	addField("Read Timeout", c.ReadTimeout.String())
	addField("Write Timeout", c.WriteTimeout.String())
	addField("Shutdown Timeout", c.ShutdownTimeout.String())

	// Rate limiting
	addSection("Rate Limiting")
	if c.RateLimit > 0 {
		addField("Requests Per Second", strconv.FormatFloat(c.RateLimit, 'g', -1, 64))
		addField("Burst", strconv.Itoa(c.RateBurst))
	} else {
		addField("Requests Per Second", "unlimited")
	}

	// Change notifications
	addSection("Change Notifications")
	if c.NATSUrl != "" {
		addField("NATS URL", c.NATSUrl)
		addField("Subject", c.NATSSubject)
	} else {
		addField("NATS URL", "disabled")
	}

	return sb.String()
}
