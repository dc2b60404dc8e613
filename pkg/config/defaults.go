package config

// DefaultConfig returns the configuration used before the file and
// environment are applied. Credentials are deliberately left empty.
func DefaultConfig() *Config {
	return &Config{
		Operator: OperatorConfig{
			LoginAttemptsPerMinute: 5,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Store: StoreConfig{
			Path: "~/.picohub/agents.json",
		},
		Log: LogConfig{
			Level: "info",
		},
		Capabilities: []string{"background", "network", "storage", "notifications", "updates"},
		Timezone:     "UTC",
	}
}
