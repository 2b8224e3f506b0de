package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/cradlekeeper/internal/flagx"
	"github.com/dmitrijs2005/cradlekeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It uses
// timex.Duration so intervals can be written either as strings like
// "500ms" or as integer nanoseconds.
type JsonConfig struct {
	DatabaseDSN        string         `json:"database_dsn"`
	ControlEndpointURL string         `json:"control_endpoint_url"`
	PushEndpointURL    string         `json:"push_endpoint_url"`
	DeviceToken        string         `json:"device_token"`
	DeviceName         string         `json:"device_name"`
	DeviceSecret       string         `json:"device_secret"`
	S3Region           string         `json:"s3_region"`
	S3Bucket           string         `json:"s3_bucket"`
	S3AccessKey        string         `json:"s3_access_key"`
	S3SecretKey        string         `json:"s3_secret_key"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	SaveDelay          timex.Duration `json:"save_delay"`
	SyncDebounce       timex.Duration `json:"sync_debounce"`
	PeerListenAddr     string         `json:"peer_listen_addr"`
}

// parseJson overlays cfg with values from the JSON file named by the
// -c/-config flag. Empty JSON fields leave the current value in place.
// Read or unmarshal errors panic; the caller treats a broken config
// file as fatal.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setIfNotEmpty(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setIfNotEmpty(&cfg.ControlEndpointURL, jc.ControlEndpointURL)
	setIfNotEmpty(&cfg.PushEndpointURL, jc.PushEndpointURL)
	setIfNotEmpty(&cfg.DeviceToken, jc.DeviceToken)
	setIfNotEmpty(&cfg.DeviceName, jc.DeviceName)
	setIfNotEmpty(&cfg.DeviceSecret, jc.DeviceSecret)
	setIfNotEmpty(&cfg.S3Region, jc.S3Region)
	setIfNotEmpty(&cfg.S3Bucket, jc.S3Bucket)
	setIfNotEmpty(&cfg.S3AccessKey, jc.S3AccessKey)
	setIfNotEmpty(&cfg.S3SecretKey, jc.S3SecretKey)
	setIfNotEmpty(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setIfNotEmpty(&cfg.PeerListenAddr, jc.PeerListenAddr)

	if jc.SaveDelay.Duration > 0 {
		cfg.SaveDelay = time.Duration(jc.SaveDelay.Duration)
	}
	if jc.SyncDebounce.Duration > 0 {
		cfg.SyncDebounce = time.Duration(jc.SyncDebounce.Duration)
	}
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
