package config

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var segmentPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("segment", validateSegment)
	_ = v.RegisterValidation("transport", validateTransport)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.validator.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

// ValidateEngine validates an engine configuration on its own
func (cv *CustomValidator) ValidateEngine(ec *EngineConfig) error {
	if err := cv.validator.Struct(ec); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return validateEngine(ec)
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateSegment(fl validator.FieldLevel) bool {
	return segmentPattern.MatchString(fl.Field().String())
}

func validateTransport(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "log", "nats", "kafka", "telegram":
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if cfg.IsProduction() && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
	}

	for _, t := range cfg.Notifier.Transports {
		switch t {
		case "nats":
			if cfg.Notifier.NATS.URL == "" {
				return fmt.Errorf("notifier transport nats requires notifier.nats.url")
			}
		case "kafka":
			if len(cfg.Notifier.Kafka.Brokers) == 0 {
				return fmt.Errorf("notifier transport kafka requires notifier.kafka.brokers")
			}
		case "telegram":
			if cfg.Notifier.Telegram.BotToken == "" || cfg.Notifier.Telegram.ChatID == "" {
				return fmt.Errorf("notifier transport telegram requires bot_token and chat_id")
			}
		}
	}

	return validateEngine(&cfg.Engine)
}

func validateEngine(ec *EngineConfig) error {
	if ec.Version > EngineConfigVersion {
		return fmt.Errorf("engine config version %d is newer than supported version %d", ec.Version, EngineConfigVersion)
	}

	if !approxOne(ec.Rank.Win + ec.Rank.Place + ec.Rank.Rank) {
		return fmt.Errorf("engine.rank weights must sum to 1, got %.4f", ec.Rank.Win+ec.Rank.Place+ec.Rank.Rank)
	}

	r := ec.Retrain
	if !approxOne(r.TrainFraction + r.ValidationFraction + r.HoldoutFraction) {
		return fmt.Errorf("engine.retrain split fractions must sum to 1")
	}
	if r.SearchStartupTrials > r.SearchTrials {
		return fmt.Errorf("engine.retrain.search_startup_trials cannot exceed search_trials")
	}

	if ec.Failure.FavoriteOdds >= ec.Failure.UpsetOdds {
		return fmt.Errorf("engine.failure.favorite_odds must be below upset_odds")
	}

	if ec.EV.LooseThreshold > ec.EV.Threshold {
		return fmt.Errorf("engine.ev.loose_threshold cannot exceed threshold")
	}

	return nil
}

func approxOne(v float64) bool {
	return math.Abs(v-1) < 1e-6
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required", "required_if":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "segment":
			errMsg += fmt.Sprintf("- Field '%s' has invalid segment name '%v'\n", field, value)
		case "transport":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: log, nats, kafka, telegram\n", field)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}
