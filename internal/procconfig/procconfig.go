// Package procconfig loads the agent's own process configuration — data
// directory, model config file path, API listen addresses, WireGuard
// binary discovery paths — from environment variables, via the
// GetEnv/GetEnvOptional helpers in internal/helper. This is ambient
// process plumbing the model itself (internal/wgmodel, persisted by
// internal/store) never touches.
package procconfig

import (
	"path/filepath"

	"wgquickrs/internal/helper"
)

// Config is the agent's process-level configuration.
type Config struct {
	// DataDir holds the persisted model YAML (conf.yml) unless
	// ConfigFile points elsewhere.
	DataDir string
	// ConfigFile is the full path to the persisted Model YAML.
	ConfigFile string

	InterfaceName string

	// WgToolPath is the `wg` binary used by the Telemetry Sampler for
	// `wg show <iface> dump`.
	WgToolPath string
	// UserspaceBinary is wireguard-go (or equivalent), used only on the
	// kernel-module-missing fallback path.
	UserspaceBinary string

	HTTPAddr  string
	HTTPSAddr string
	TLSCert   string
	TLSKey    string
}

// Load reads process configuration from the environment, applying the
// same defaults a freshly-installed agent would ship with.
func Load() Config {
	dataDir := helper.GetEnvOptional("WGQUICKRS_DATA_DIR", "/var/lib/wg-quickrs")
	return Config{
		DataDir:         dataDir,
		ConfigFile:      helper.GetEnvOptional("WGQUICKRS_CONFIG_FILE", filepath.Join(dataDir, "conf.yml")),
		InterfaceName:   helper.GetEnvOptional("WGQUICKRS_INTERFACE", "wg-quickrs"),
		WgToolPath:      helper.GetEnvOptional("WGQUICKRS_WG_PATH", "wg"),
		UserspaceBinary: helper.GetEnvOptional("WGQUICKRS_USERSPACE_BINARY", ""),
		HTTPAddr:        helper.GetEnvOptional("WGQUICKRS_HTTP_ADDR", ":80"),
		HTTPSAddr:       helper.GetEnvOptional("WGQUICKRS_HTTPS_ADDR", ":443"),
		TLSCert:         helper.GetEnvOptional("WGQUICKRS_TLS_CERT", ""),
		TLSKey:          helper.GetEnvOptional("WGQUICKRS_TLS_KEY", ""),
	}
}
