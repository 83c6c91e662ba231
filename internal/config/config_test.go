package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-at-least-32-characters")
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("ENV", "")
}

func mustLoad(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	return cfg
}

func TestLoad_ServerTimeouts(t *testing.T) {
	tests := []struct {
		name                string
		read, write, idle   string
		wantRead, wantWrite time.Duration
		wantIdle            time.Duration
	}{
		{"defaults", "", "", "", 15 * time.Second, 15 * time.Second, 60 * time.Second},
		{"custom", "30s", "45s", "2m", 30 * time.Second, 45 * time.Second, 2 * time.Minute},
		{"partial", "25s", "", "", 25 * time.Second, 15 * time.Second, 60 * time.Second},
		{"garbage falls back", "soon", "", "", 15 * time.Second, 15 * time.Second, 60 * time.Second},
		{"zero disables", "0s", "", "", 0, 15 * time.Second, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("SERVER_READ_TIMEOUT", tt.read)
			t.Setenv("SERVER_WRITE_TIMEOUT", tt.write)
			t.Setenv("SERVER_IDLE_TIMEOUT", tt.idle)

			s := mustLoad(t).Server
			if s.ReadTimeout != tt.wantRead || s.WriteTimeout != tt.wantWrite || s.IdleTimeout != tt.wantIdle {
				t.Errorf("timeouts = %v/%v/%v, want %v/%v/%v",
					s.ReadTimeout, s.WriteTimeout, s.IdleTimeout, tt.wantRead, tt.wantWrite, tt.wantIdle)
			}
		})
	}
}

func TestLoad_DomainDefaults(t *testing.T) {
	setRequired(t)
	cfg := mustLoad(t)

	durations := map[string]struct{ got, want time.Duration }{
		"LockoutDuration": {cfg.Auth.LockoutDuration, 30 * time.Minute},
		"CleanupInterval": {cfg.Auth.CleanupInterval, 10 * time.Minute},
		"CodeTTL":         {cfg.Links.CodeTTL, 24 * time.Hour},
		"QRTokenTTL":      {cfg.Links.QRTokenTTL, 10 * time.Minute},
		"SendTimeout":     {cfg.Email.SendTimeout, 10 * time.Second},
	}
	for name, d := range durations {
		if d.got != d.want {
			t.Errorf("%s = %v, want %v", name, d.got, d.want)
		}
	}

	if cfg.Auth.LockoutMaxAttempts != 5 {
		t.Errorf("LockoutMaxAttempts = %d, want 5", cfg.Auth.LockoutMaxAttempts)
	}
	if cfg.Redis.KeyPrefix != "osnovci:" {
		t.Errorf("Redis.KeyPrefix = %q, want osnovci:", cfg.Redis.KeyPrefix)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name                string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}},
		{"weak jwt secret", map[string]string{"JWT_SECRET": "changeme"}},
		{"short production secret", map[string]string{"ENV": "production", "JWT_SECRET": "short-but-16-chars"}},
		{"missing db password", map[string]string{"DB_PASSWORD": ""}},
		{"zero lockout attempts", map[string]string{"LOCKOUT_MAX_ATTEMPTS": "0"}},
		{"non-positive lockout duration", map[string]string{"LOCKOUT_DURATION": "-1m"}},
		{"unknown email provider", map[string]string{"EMAIL_PROVIDER": "smtp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load() = nil, want error")
			}
		})
	}
}

func TestLoad_TrustedProxiesParsed(t *testing.T) {
	setRequired(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1/32 ,")

	got := mustLoad(t).Server.TrustedProxies
	want := []string{"10.0.0.0/8", "127.0.0.1/32"}
	if len(got) != len(want) {
		t.Fatalf("TrustedProxies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_EmailProviderFollowsEnv(t *testing.T) {
	setRequired(t)
	if p := mustLoad(t).Email.Provider; p != "log" {
		t.Errorf("development provider = %q, want log", p)
	}

	t.Setenv("ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://osnovci.example")
	cfg := mustLoad(t)
	if cfg.Email.Provider != "ses" {
		t.Errorf("production provider = %q, want ses", cfg.Email.Provider)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://osnovci.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadDatabase_DoesNotNeedJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("DB_NAME", "osnovci_test")

	cfg, err := LoadDatabase()
	if err != nil {
		t.Fatalf("LoadDatabase() = %v", err)
	}
	want := "host=localhost port=5432 user=postgres password=test dbname=osnovci_test sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadDatabase_RequiresPassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")

	if _, err := LoadDatabase(); err == nil {
		t.Fatal("LoadDatabase() = nil, want error when DB_PASSWORD is missing")
	}
}
