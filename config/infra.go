package config

// StorageConfig selects the session store. An empty DSN selects the
// in-memory store.
type StorageConfig struct {
	DSN string `json:"dsn"`
}

// MetricsConfig enables the Prometheus and InfluxDB sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    int    `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusPort == 0 {
		c.PrometheusPort = 9090
	}
}

// LoggingConfig selects the output format and level.
type LoggingConfig struct {
	// Env selects the output format: "dev" for console, anything else JSON.
	Env string `json:"env"`
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}
