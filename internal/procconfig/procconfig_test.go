package procconfig

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.DataDir != "/var/lib/wg-quickrs" {
		t.Errorf("DataDir = %q, want default /var/lib/wg-quickrs", cfg.DataDir)
	}
	if cfg.InterfaceName != "wg-quickrs" {
		t.Errorf("InterfaceName = %q, want default wg-quickrs", cfg.InterfaceName)
	}
	if cfg.WgToolPath != "wg" {
		t.Errorf("WgToolPath = %q, want default wg", cfg.WgToolPath)
	}
	if cfg.HTTPAddr != ":80" {
		t.Errorf("HTTPAddr = %q, want default :80", cfg.HTTPAddr)
	}
	if cfg.HTTPSAddr != ":443" {
		t.Errorf("HTTPSAddr = %q, want default :443", cfg.HTTPSAddr)
	}
}

func TestLoadConfigFileDefaultsUnderDataDir(t *testing.T) {
	t.Setenv("WGQUICKRS_DATA_DIR", "/srv/wg-quickrs")
	cfg := Load()
	want := "/srv/wg-quickrs/conf.yml"
	if cfg.ConfigFile != want {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, want)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("WGQUICKRS_DATA_DIR", "/data")
	t.Setenv("WGQUICKRS_CONFIG_FILE", "/data/custom.yaml")
	t.Setenv("WGQUICKRS_INTERFACE", "wg1")
	t.Setenv("WGQUICKRS_WG_PATH", "/usr/local/bin/wg")
	t.Setenv("WGQUICKRS_HTTP_ADDR", "127.0.0.1:8080")

	cfg := Load()
	if cfg.DataDir != "/data" {
		t.Errorf("DataDir = %q, want /data", cfg.DataDir)
	}
	if cfg.ConfigFile != "/data/custom.yaml" {
		t.Errorf("ConfigFile = %q, want /data/custom.yaml", cfg.ConfigFile)
	}
	if cfg.InterfaceName != "wg1" {
		t.Errorf("InterfaceName = %q, want wg1", cfg.InterfaceName)
	}
	if cfg.WgToolPath != "/usr/local/bin/wg" {
		t.Errorf("WgToolPath = %q, want /usr/local/bin/wg", cfg.WgToolPath)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want 127.0.0.1:8080", cfg.HTTPAddr)
	}
}
