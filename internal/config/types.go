package config

// Config is the root configuration for voicegate.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Emotion  EmotionConfig  `yaml:"emotion,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ProviderConfig points at the external conversational-AI provider.
type ProviderConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty"` // supports ${ENV_VAR} expansion
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// EmotionConfig points at the remote emotion-classification backend.
type EmotionConfig struct {
	BackendURL      string `yaml:"backendUrl,omitempty"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds,omitempty"`
	CacheTTLMinutes int    `yaml:"cacheTtlMinutes,omitempty"`
}

// SessionConfig defines session lifecycle behavior.
type SessionConfig struct {
	IdleMinutes  int    `yaml:"idleMinutes,omitempty"`  // inactivity threshold before reaping
	SweepMinutes int    `yaml:"sweepMinutes,omitempty"` // reaper interval
	Store        string `yaml:"store,omitempty"`        // "sqlite" | "memory"
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
