package config

import "github.com/jakewatkins/mcphost/internal/hosterrors"

func newConfigError(message, configPath, field string) error {
	return &hosterrors.ConfigurationError{
		Message:    message,
		ConfigPath: configPath,
		Field:      field,
	}
}
