package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LIVEONE_API_KEY", "")
	t.Setenv("LIVEONE_SERVER", "")
	t.Setenv("LIVEONE_ENABLED", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != defaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, defaultPort)
	}
	if cfg.PushConfigured {
		t.Errorf("PushConfigured = true, want false when no LIVEONE_* vars set")
	}
}

func TestLoadBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestValidatePushAllOrNothing(t *testing.T) {
	cases := []struct {
		name    string
		apiKey  string
		server  string
		enabled string
		wantErr bool
	}{
		{"none set", "", "", "", false},
		{"all valid", "fr_abc123", "https://example.com", "true", false},
		{"missing prefix", "abc123", "https://example.com", "true", true},
		{"bad scheme", "fr_abc123", "ftp://example.com", "true", true},
		{"bad enabled literal", "fr_abc123", "https://example.com", "yes", true},
		{"only key set", "fr_abc123", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LIVEONE_API_KEY", tc.apiKey)
			t.Setenv("LIVEONE_SERVER", tc.server)
			t.Setenv("LIVEONE_ENABLED", tc.enabled)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			errs := cfg.ValidatePush()
			if tc.wantErr && len(errs) == 0 {
				t.Errorf("ValidatePush() = no errors, want at least one")
			}
			if !tc.wantErr && len(errs) != 0 {
				t.Errorf("ValidatePush() = %v, want none", errs)
			}
		})
	}
}

func TestPushURL(t *testing.T) {
	cfg := &Config{PushServer: "https://example.com/"}
	want := "https://example.com/api/push/fronius"
	if got := cfg.PushURL(); got != want {
		t.Errorf("PushURL() = %q, want %q", got, want)
	}
}
