package config

// LoggingConfig configures categorized file logging under .pulse/logs/.
type LoggingConfig struct {
	// DebugMode gates all file logging; false means no log files at all
	DebugMode bool `yaml:"debug_mode"`

	// Level: debug, info, warn, error
	Level string `yaml:"level"`

	// Categories toggles individual subsystems; absent categories default to on
	Categories map[string]bool `yaml:"categories,omitempty"`

	// JSONFormat switches log lines to structured JSON
	JSONFormat bool `yaml:"json_format"`
}
