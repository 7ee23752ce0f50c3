// Package rfbconfig loads rfbd's configuration from environment variables
// with sensible defaults, failing fast with helpful error messages.
package rfbconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all of rfbd's runtime configuration.
type Config struct {
	// RFB server
	Port          int
	Width, Height int
	Password      string
	DesktopName   string
	AcceptRate    float64
	AcceptBurst   int

	// Capture task
	CaptureInterval time.Duration

	// WebSocket bridge; zero Port disables the bridge.
	WSPort int

	// Admin API; zero Port disables the admin API.
	AdminPort     int
	AdminUsername string
	AdminPassword string
	JWTSecret     string
}

// ValidationError is a single field-level configuration failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds every failure found while loading configuration.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Default values.
const (
	DefaultPort            = 5900
	DefaultWidth           = 1280
	DefaultHeight          = 800
	DefaultDesktopName     = "rfbd"
	DefaultAcceptRate      = 5.0
	DefaultAcceptBurst     = 10
	DefaultCaptureInterval = 50 * time.Millisecond
	DefaultAdminUsername   = "admin"
)

// Load reads configuration from environment variables, applies defaults,
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            DefaultPort,
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		DesktopName:     DefaultDesktopName,
		AcceptRate:      DefaultAcceptRate,
		AcceptBurst:     DefaultAcceptBurst,
		CaptureInterval: DefaultCaptureInterval,
		AdminUsername:   DefaultAdminUsername,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	var errs ValidationErrors

	if v := os.Getenv("RFBD_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, ValidationError{"RFBD_PORT", fmt.Sprintf("invalid port %q: %v", v, err)})
		} else {
			c.Port = n
		}
	}
	if v := os.Getenv("RFBD_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, ValidationError{"RFBD_WIDTH", fmt.Sprintf("invalid width %q: %v", v, err)})
		} else {
			c.Width = n
		}
	}
	if v := os.Getenv("RFBD_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, ValidationError{"RFBD_HEIGHT", fmt.Sprintf("invalid height %q: %v", v, err)})
		} else {
			c.Height = n
		}
	}
	if v := os.Getenv("RFBD_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("RFBD_DESKTOP_NAME"); v != "" {
		c.DesktopName = v
	}
	if v := os.Getenv("RFBD_ACCEPT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			errs = append(errs, ValidationError{"RFBD_ACCEPT_RATE", fmt.Sprintf("invalid rate %q: %v", v, err)})
		} else {
			c.AcceptRate = f
		}
	}
	if v := os.Getenv("RFBD_ACCEPT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, ValidationError{"RFBD_ACCEPT_BURST", fmt.Sprintf("invalid burst %q: %v", v, err)})
		} else {
			c.AcceptBurst = n
		}
	}
	if v := os.Getenv("RFBD_CAPTURE_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, ValidationError{"RFBD_CAPTURE_INTERVAL_MS", fmt.Sprintf("invalid interval %q: %v", v, err)})
		} else if n <= 0 {
			errs = append(errs, ValidationError{"RFBD_CAPTURE_INTERVAL_MS", "must be positive"})
		} else {
			c.CaptureInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("RFBD_WS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, ValidationError{"RFBD_WS_PORT", fmt.Sprintf("invalid port %q: %v", v, err)})
		} else {
			c.WSPort = n
		}
	}
	if v := os.Getenv("RFBD_ADMIN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, ValidationError{"RFBD_ADMIN_PORT", fmt.Sprintf("invalid port %q: %v", v, err)})
		} else {
			c.AdminPort = n
		}
	}
	if v := os.Getenv("RFBD_ADMIN_USERNAME"); v != "" {
		c.AdminUsername = v
	}
	if v := os.Getenv("RFBD_ADMIN_PASSWORD"); v != "" {
		c.AdminPassword = v
	}
	if v := os.Getenv("RFBD_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate checks cross-field and range invariants.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{"RFBD_PORT", fmt.Sprintf("must be between 1 and 65535, got %d", c.Port)})
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, ValidationError{"RFBD_WIDTH/RFBD_HEIGHT", fmt.Sprintf("must be positive, got %dx%d", c.Width, c.Height)})
	}
	if c.WSPort != 0 && (c.WSPort < 1 || c.WSPort > 65535) {
		errs = append(errs, ValidationError{"RFBD_WS_PORT", fmt.Sprintf("must be between 1 and 65535, got %d", c.WSPort)})
	}
	if c.AdminPort != 0 {
		if c.AdminPort < 1 || c.AdminPort > 65535 {
			errs = append(errs, ValidationError{"RFBD_ADMIN_PORT", fmt.Sprintf("must be between 1 and 65535, got %d", c.AdminPort)})
		}
		if c.AdminPassword == "" {
			errs = append(errs, ValidationError{"RFBD_ADMIN_PASSWORD", "required when RFBD_ADMIN_PORT is set"})
		}
		if len(c.JWTSecret) < 32 {
			errs = append(errs, ValidationError{"RFBD_JWT_SECRET", "must be at least 32 characters when RFBD_ADMIN_PORT is set"})
		}
	}

	return errs
}

// MustLoad loads configuration and exits the process on failure, for use
// at process startup where configuration errors are fatal.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: failed to load configuration\n\n%s\n", err)
		os.Exit(1)
	}
	return cfg
}
