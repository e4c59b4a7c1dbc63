package tele

type Config struct { //nolint:maligned
	Enable            bool   `hcl:"enable"`
	PanelId           int    `hcl:"panel_id"`
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttPassword      string `hcl:"mqtt_password"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	TlsCaFile         string `hcl:"tls_ca_file"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
}
