package rfbconfig

import (
	"os"
	"testing"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	envVars := []string{
		"RFBD_PORT",
		"RFBD_WIDTH",
		"RFBD_HEIGHT",
		"RFBD_PASSWORD",
		"RFBD_DESKTOP_NAME",
		"RFBD_ACCEPT_RATE",
		"RFBD_ACCEPT_BURST",
		"RFBD_CAPTURE_INTERVAL_MS",
		"RFBD_WS_PORT",
		"RFBD_ADMIN_PORT",
		"RFBD_ADMIN_USERNAME",
		"RFBD_ADMIN_PASSWORD",
		"RFBD_JWT_SECRET",
	}
	for _, v := range envVars {
		old, had := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if had {
				os.Setenv(v, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %v, want %v", cfg.Port, DefaultPort)
	}
	if cfg.Width != DefaultWidth || cfg.Height != DefaultHeight {
		t.Errorf("dimensions = %dx%d, want %dx%d", cfg.Width, cfg.Height, DefaultWidth, DefaultHeight)
	}
	if cfg.Password != "" {
		t.Errorf("Password = %q, want empty", cfg.Password)
	}
	if cfg.DesktopName != DefaultDesktopName {
		t.Errorf("DesktopName = %q, want %q", cfg.DesktopName, DefaultDesktopName)
	}
	if cfg.AdminPort != 0 || cfg.WSPort != 0 {
		t.Errorf("AdminPort/WSPort = %d/%d, want both disabled by default", cfg.AdminPort, cfg.WSPort)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnvVars(t)
	os.Setenv("RFBD_PORT", "5901")
	os.Setenv("RFBD_WIDTH", "640")
	os.Setenv("RFBD_HEIGHT", "480")
	os.Setenv("RFBD_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 5901 {
		t.Errorf("Port = %v, want 5901", cfg.Port)
	}
	if cfg.Width != 640 || cfg.Height != 480 {
		t.Errorf("dimensions = %dx%d, want 640x480", cfg.Width, cfg.Height)
	}
	if cfg.Password != "secret" {
		t.Errorf("Password = %q, want %q", cfg.Password, "secret")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	clearEnvVars(t)
	os.Setenv("RFBD_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid port, got nil")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := &Config{Port: 70000, Width: 640, Height: 480}
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("Validate() expected an error for an out-of-range port")
	}
}

func TestValidateRejectsNonPositiveDimensions(t *testing.T) {
	cfg := &Config{Port: 5900, Width: 0, Height: 480}
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("Validate() expected an error for a zero width")
	}
}

func TestValidateRequiresAdminSecretsWhenAdminPortSet(t *testing.T) {
	cfg := &Config{Port: 5900, Width: 640, Height: 480, AdminPort: 8443}
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("Validate() expected errors when AdminPort is set without password/secret")
	}

	cfg.AdminPassword = "swordfish"
	cfg.JWTSecret = "01234567890123456789012345678901"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors once admin secrets are set", errs)
	}
}
