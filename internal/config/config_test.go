package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MPESA_ENV", "")
	t.Setenv("MPESA_BASE_URL", "")
	t.Setenv("BOOKING_STORE", "")
	t.Setenv("MPESA_CALLBACK_ALLOWED_CIDRS", "")

	cfg := Load()

	if cfg.Mpesa.BaseURL != SandboxBaseURL {
		t.Errorf("expected sandbox base url, got %s", cfg.Mpesa.BaseURL)
	}
	if cfg.Mpesa.HTTPTimeout != 20*time.Second {
		t.Errorf("expected 20s gateway timeout, got %v", cfg.Mpesa.HTTPTimeout)
	}
	if cfg.Mpesa.AccountReference != "Luxury Rides" {
		t.Errorf("unexpected account reference %q", cfg.Mpesa.AccountReference)
	}
	if cfg.Mpesa.Location == nil {
		t.Error("expected a gateway location")
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("expected postgres store, got %s", cfg.Store.Backend)
	}
	if cfg.Poller.Interval != 3*time.Second || cfg.Poller.Timeout != 5*time.Minute {
		t.Errorf("unexpected poller timings %+v", cfg.Poller)
	}
	if cfg.Mpesa.CallbackAllowedCIDRs != nil {
		t.Errorf("expected no CIDR allow-list, got %v", cfg.Mpesa.CallbackAllowedCIDRs)
	}
}

func TestLoad_ProductionAndOverrides(t *testing.T) {
	t.Setenv("MPESA_ENV", "Production")
	t.Setenv("MPESA_BASE_URL", "")
	t.Setenv("MPESA_HTTP_TIMEOUT", "15s")
	t.Setenv("MPESA_CALLBACK_ALLOWED_CIDRS", "196.201.214.0/24, ,196.201.213.0/24")
	t.Setenv("BOOKING_STORE", "FILE")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("POLL_INTERVAL", "not-a-duration")

	cfg := Load()

	if cfg.Mpesa.BaseURL != ProductionBaseURL {
		t.Errorf("expected production base url, got %s", cfg.Mpesa.BaseURL)
	}
	if cfg.Mpesa.HTTPTimeout != 15*time.Second {
		t.Errorf("expected 15s, got %v", cfg.Mpesa.HTTPTimeout)
	}
	want := []string{"196.201.214.0/24", "196.201.213.0/24"}
	if !reflect.DeepEqual(cfg.Mpesa.CallbackAllowedCIDRs, want) {
		t.Errorf("expected %v, got %v", want, cfg.Mpesa.CallbackAllowedCIDRs)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("expected file store, got %s", cfg.Store.Backend)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis disabled")
	}
	if cfg.Poller.Interval != 3*time.Second {
		t.Errorf("expected fallback interval, got %v", cfg.Poller.Interval)
	}
}

func TestMissingMpesaSettings(t *testing.T) {
	cfg := &Config{Mpesa: MpesaConfig{ConsumerKey: "key", Passkey: "pk"}}

	got := cfg.MissingMpesaSettings()
	want := []string{"MPESA_CALLBACK_URL", "MPESA_CONSUMER_SECRET"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
