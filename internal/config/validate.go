package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}

	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.customBindHost",
			Message: "required when bind: custom",
		})
	}

	if cfg.Provider.BaseURL != "" && !strings.HasPrefix(cfg.Provider.BaseURL, "http") {
		issues = append(issues, ValidationIssue{
			Path:    "provider.baseUrl",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", cfg.Provider.BaseURL),
		})
	}

	if cfg.Emotion.BackendURL != "" && !strings.HasPrefix(cfg.Emotion.BackendURL, "http") {
		issues = append(issues, ValidationIssue{
			Path:    "emotion.backendUrl",
			Message: fmt.Sprintf("must be an http(s) URL, got %q", cfg.Emotion.BackendURL),
		})
	}

	if cfg.Emotion.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "emotion.timeoutSeconds",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Emotion.TimeoutSeconds),
		})
	}

	if cfg.Session.IdleMinutes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.idleMinutes",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Session.IdleMinutes),
		})
	}

	if cfg.Session.SweepMinutes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.sweepMinutes",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Session.SweepMinutes),
		})
	}

	validStores := []string{"sqlite", "memory"}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "session.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Session.Store),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
