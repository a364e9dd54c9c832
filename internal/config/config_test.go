package config

import "testing"

// Set uses sync.Once, so this package's global config can only be
// installed once per test binary; every case below runs in one
// function, in order, to stay within that constraint.
func TestSetGetAndServiceLookup(t *testing.T) {
	if Get() != nil {
		t.Fatalf("Get() = %+v before any Set(), want nil", Get())
	}
	if IsServiceEnabled("network") {
		t.Fatalf("IsServiceEnabled() = true before any Set()")
	}

	cfg := &Config{
		Version: "v1",
		Services: map[string]ServiceConfig{
			"network": {Prefix: "/network", Enabled: true, Endpoints: []EndpointConfig{
				{Path: "/summary", Methods: []string{"GET"}, Handler: "Summary"},
			}},
			"disabled-service": {Prefix: "/x", Enabled: false},
		},
	}
	Set(cfg)

	if Get() != cfg {
		t.Fatalf("Get() = %+v, want the installed config", Get())
	}
	if svc := GetService("network"); svc == nil || svc.Prefix != "/network" {
		t.Errorf("GetService(network) = %+v, want Prefix=/network", svc)
	}
	if GetService("missing") != nil {
		t.Errorf("GetService(missing) = non-nil, want nil")
	}
	if !IsServiceEnabled("network") {
		t.Errorf("IsServiceEnabled(network) = false, want true")
	}
	if IsServiceEnabled("disabled-service") {
		t.Errorf("IsServiceEnabled(disabled-service) = true, want false")
	}
	if IsServiceEnabled("missing") {
		t.Errorf("IsServiceEnabled(missing) = true, want false")
	}

	Set(&Config{Version: "v2"})
	if Get().Version != "v1" {
		t.Errorf("second Set() changed the config: Version = %q, want v1 (sync.Once should make it a no-op)", Get().Version)
	}
}
