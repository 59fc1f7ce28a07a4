package commands

import (
	"github.com/mosaicnetworks/geocast/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Geocast config.Config `mapstructure:",squash"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Geocast: *config.NewDefaultConfig(),
	}
}
