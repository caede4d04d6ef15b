// Package config loads, validates, and defaults voicegate configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied. The session
// and emotion timings match the protocol contract: one-hour idle
// threshold swept every thirty minutes, five-minute classification
// cache, five-second classification timeout.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3001,
			Bind: "loopback",
		},
		Provider: ProviderConfig{
			BaseURL:        "https://api.elevenlabs.io",
			TimeoutSeconds: 30,
		},
		Emotion: EmotionConfig{
			BackendURL:      "http://localhost:5001",
			TimeoutSeconds:  5,
			CacheTTLMinutes: 5,
		},
		Session: SessionConfig{
			IdleMinutes:  60,
			SweepMinutes: 30,
			Store:        "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
