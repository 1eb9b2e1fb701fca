package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validConfigPath              = "testdata/valid_config.yaml"
	expansionConfigPath          = "testdata/expansion_config.yaml"
	nonexistentConfigPath        = "testdata/nonexistent_config.yaml"
	expectedNoErrorLoadingConfig = "expected no error loading config, got %v"
	expectedNoErrorMsg           = "expected no error, got %v"
	furlongName                  = "furlong"
	developmentEnv               = "development"
	testAppName                  = "test-app"
	testDBPassword               = "TEST_DB_PASSWORD"
	expandedSecretValue          = "expanded_secret_value"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.App.Name != furlongName {
		t.Errorf("expected app name '%s', got '%s'", furlongName, cfg.App.Name)
	}
	if cfg.App.Environment != developmentEnv {
		t.Errorf("expected environment '%s', got '%s'", developmentEnv, cfg.App.Environment)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected database port 5432, got %d", cfg.Database.Port)
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	t.Setenv("FURLONG_APP_NAME", testAppName)

	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.App.Name != testAppName {
		t.Errorf("expected app name '%s' from environment, got '%s'", testAppName, cfg.App.Name)
	}
}

// TestLoadConfigEnvironmentVariableExpansion tests ${VAR} expansion in the file
func TestLoadConfigEnvironmentVariableExpansion(t *testing.T) {
	t.Setenv(testDBPassword, expandedSecretValue)

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf("expected no error loading config with expansion, got %v", err)
	}

	if cfg.Database.Password != expandedSecretValue {
		t.Errorf("expected password '%s', got '%s'", expandedSecretValue, cfg.Database.Password)
	}
}

func TestLoadAppliesEngineDefaults(t *testing.T) {
	cfg, err := Load(expansionConfigPath)
	require.NoError(t, err)

	ec := cfg.Engine
	assert.Equal(t, EngineConfigVersion, ec.Version)
	assert.Equal(t, []string{"turf", "dirt"}, ec.Segments)
	assert.InDelta(t, 1.5, ec.EV.Threshold, 1e-9)
	assert.InDelta(t, 1.2, ec.EV.LooseThreshold, 1e-9)
	assert.InDelta(t, 1.96, ec.Confidence.Z, 1e-9)
	assert.InDelta(t, 0.6, ec.Calibration.BlendWeight, 1e-9)
	assert.Equal(t, 20, ec.Calibration.Bins)
	assert.Equal(t, 100, ec.Retrain.MinSamples)
	assert.Equal(t, 3, ec.Retrain.WindowYears)
	assert.InDelta(t, 10.0, ec.Failure.UpsetOdds, 1e-9)
	assert.Equal(t, uint64(42), ec.Retrain.SearchSeed)
}

func TestLoadKeepsFileValuesOverDefaults(t *testing.T) {
	data, err := os.ReadFile(validConfigPath)
	require.NoError(t, err)

	override := strings.Replace(string(data), "threshold: 1.5", "threshold: 1.8", 1)
	cfg, err := parse([]byte(override))
	require.NoError(t, err)

	assert.InDelta(t, 1.8, cfg.Engine.EV.Threshold, 1e-9)
	assert.InDelta(t, 1.2, cfg.Engine.EV.LooseThreshold, 1e-9)
}

// TestValidateSuccess tests validation of a valid configuration
func TestValidateSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "invalid" },
			wantErr: "Environment",
		},
		{
			name:    "invalid segment name",
			mutate:  func(c *Config) { c.Engine.Segments = []string{"Turf Course"} },
			wantErr: "segment",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Notifier.Transports = []string{"carrier-pigeon"} },
			wantErr: "Transports",
		},
		{
			name:    "rank weights do not sum to one",
			mutate:  func(c *Config) { c.Engine.Rank.Win = 0.9 },
			wantErr: "rank weights",
		},
		{
			name:    "favorite above upset",
			mutate:  func(c *Config) { c.Engine.Failure.FavoriteOdds = 12 },
			wantErr: "favorite_odds",
		},
		{
			name:    "loose threshold above strict",
			mutate:  func(c *Config) { c.Engine.EV.LooseThreshold = 2 },
			wantErr: "loose_threshold",
		},
		{
			name:    "nats without url",
			mutate:  func(c *Config) { c.Notifier.Transports = []string{"nats"} },
			wantErr: "notifier.nats.url",
		},
		{
			name: "production without ssl",
			mutate: func(c *Config) {
				c.App.Environment = "production"
			},
			wantErr: "SSL",
		},
		{
			name:    "future engine version",
			mutate:  func(c *Config) { c.Engine.Version = EngineConfigVersion + 1 },
			wantErr: "newer than supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(validConfigPath)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestGetDatabaseDSN tests DSN generation
func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoadingConfig, err)
	}

	dsn := cfg.GetDatabaseDSN()
	if !strings.HasPrefix(dsn, "postgres://") {
		t.Errorf("expected DSN to start with 'postgres://', got '%s'", dsn)
	}
}

func TestHolderPublishesSnapshots(t *testing.T) {
	ec := DefaultEngineConfig()
	h := NewHolder(ec)

	ec.EV.Threshold = 2.0
	assert.InDelta(t, 1.5, h.Load().EV.Threshold, 1e-9, "holder must not alias the caller's struct")

	h.Store(ec)
	assert.InDelta(t, 2.0, h.Load().EV.Threshold, 1e-9)
}

func TestOverlaySecrets(t *testing.T) {
	cfg := &Config{}
	overlaySecretsOnConfig(cfg, &SecretsOverlay{DatabasePassword: "db", TelegramBotToken: "tg"})

	assert.Equal(t, "db", cfg.Database.Password)
	assert.Equal(t, "tg", cfg.Notifier.Telegram.BotToken)
	assert.Empty(t, cfg.Redis.Password)
}

func TestPollIntervals(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)
	predict, settle, lookahead := cfg.PollIntervals()
	assert.Equal(t, 30*time.Second, predict)
	assert.Equal(t, 2*time.Minute, settle)
	assert.Equal(t, 45*time.Minute, lookahead)

	predict, settle, lookahead = (&Config{}).PollIntervals()
	assert.Equal(t, time.Minute, predict)
	assert.Equal(t, 5*time.Minute, settle)
	assert.Equal(t, 30*time.Minute, lookahead)

	assert.Equal(t, 20*time.Second, cfg.ReloadInterval())
	assert.Equal(t, time.Minute, (&Config{}).ReloadInterval())
}
