// Package config loads runtime settings for the cradled agent.
// Precedence, lowest to highest: built-in defaults, JSON config file
// (-c/-config), command-line flags.
package config

import "time"

// Config holds runtime settings for the agent.
type Config struct {
	// DatabaseDSN is the sqlite database location.
	DatabaseDSN string

	// ControlEndpointURL is the base URL of the sharing control plane.
	ControlEndpointURL string

	// PushEndpointURL is the websocket URL of the push channel.
	PushEndpointURL string

	// DeviceToken authenticates this device to the control plane.
	DeviceToken string

	// DeviceName is shown to peers during nearby pairing.
	DeviceName string

	// DeviceSecret signs share invitations.
	DeviceSecret string

	// S3 settings for the record mirror.
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3BaseEndpoint string

	// SaveDelay is the coalescing window for local persistence writes.
	SaveDelay time.Duration

	// SyncDebounce is how long sync triggers settle before a pass runs.
	SyncDebounce time.Duration

	// PeerListenAddr is where nearby-transfer sessions advertise.
	PeerListenAddr string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "cradlekeeper.db"
	c.ControlEndpointURL = "https://api.cradlekeeper.local"
	c.PushEndpointURL = "wss://push.cradlekeeper.local/changes"
	c.DeviceName = "cradlekeeper-device"
	c.S3Region = "us-east-1"
	c.S3Bucket = "cradlekeeper-records"
	c.SaveDelay = 500 * time.Millisecond
	c.SyncDebounce = 2 * time.Second
	c.PeerListenAddr = "127.0.0.1:0"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
