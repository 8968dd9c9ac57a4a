// Package config prepares the process-wide Viper instance that the CLI reads
// its settings from. Values come from an optional config file, CHUNKGEN_*
// environment variables, and bound command-line flags.
package config

import (
	"errors"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/logging"
)

// InitConfig points the global Viper instance at cfgFile, or searches the
// usual locations for chunkgen.yaml when cfgFile is empty. A missing config
// file is not an error; defaults and the environment still apply.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("chunkgen")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/chunkgen/")
		viper.AddConfigPath("$HOME/.chunkgen")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			logging.L.Debug("config file not found; using defaults and environment variables")
			return nil
		}
		return err
	}
	logging.L.Info("using config file", zap.String("path", viper.ConfigFileUsed()))
	return nil
}
