package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "FURLONG"
	defaultConfigPath = "config/config.yaml"
)

// LoadDotEnv loads variables from a .env file when one is present
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parse(data)
}

func parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	v := newViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(&cfg.Engine); err != nil {
		return nil, fmt.Errorf("failed to apply engine defaults: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// WatchEngine reloads the engine section whenever the config file changes.
// Invalid revisions are logged and ignored; the holder keeps its snapshot.
func WatchEngine(configPath string, holder *Holder, logger *logrus.Logger) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config for watching: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(e.Name)
		if err != nil {
			logger.WithError(err).Warn("Ignoring unreadable config revision")
			return
		}
		if err := Validate(cfg); err != nil {
			logger.WithError(err).Warn("Ignoring invalid config revision")
			return
		}
		holder.Store(cfg.Engine)
		logger.WithFields(logrus.Fields{
			"file":           e.Name,
			"engine_version": cfg.Engine.Version,
			"ev_threshold":   cfg.Engine.EV.Threshold,
		}).Info("Engine configuration reloaded")
	})
	v.WatchConfig()

	return nil
}
