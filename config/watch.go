package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchFile re-parses the configuration file whenever it changes on
// disk and hands the result to onChange. The gateway uses it to adjust
// the log level at runtime without a restart; a reload that fails
// validation is logged and ignored, keeping the running config intact.
func WatchFile(path string, logger *slog.Logger, onChange func(*Config)) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := LoadConfig(path, nil)
		if err != nil {
			logger.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
