// Package config loads the bot's settings from the environment.
//
// Sources, later ones winning:
//  1. defaults in the struct tags below
//  2. an optional .env file (github.com/joho/godotenv), for local runs
//  3. real environment variables (github.com/kelseyhightower/envconfig)
//
// The result is then checked with github.com/go-playground/validator/v10.
// A missing required setting comes back as apperror.ErrConfigMissing naming
// the variable, and main exits before anything else starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/quota"
)

// Config is every setting the binary reads.
type Config struct {
	// Telegram
	BotToken       string `envconfig:"BOT_TOKEN" validate:"required"`
	ChannelID      int64  `envconfig:"CHANNEL_ID" validate:"required"`
	ChannelURL     string `envconfig:"CHANNEL_URL" default:"https://t.me/resident_room" validate:"omitempty,url"`
	AdminID        int64  `envconfig:"ADMIN_ID"` // 0 disables operator commands in chat
	BotWorkers     int    `envconfig:"BOT_WORKERS" default:"8" validate:"min=1,max=256"`
	BotPollTimeout int    `envconfig:"BOT_POLL_TIMEOUT" default:"30" validate:"min=0,max=50"` // seconds
	BotDebug       bool   `envconfig:"BOT_DEBUG" default:"false"`

	// Background removal
	PhotoroomAPIKey string        `envconfig:"PHOTOROOM_API_KEY" validate:"required"`
	RemoverEndpoint string        `envconfig:"REMOVER_ENDPOINT" default:"https://image-api.photoroom.com/v2/edit" validate:"url"`
	RemoverTimeout  time.Duration `envconfig:"REMOVER_TIMEOUT" default:"60s" validate:"gt=0"`
	RemoverRPS      float64       `envconfig:"REMOVER_RPS" default:"5" validate:"gt=0"`
	RemoverBurst    int           `envconfig:"REMOVER_BURST" default:"5" validate:"min=1"`
	MaxMB           int           `envconfig:"MAX_MB" default:"12" validate:"min=1,max=50"`

	// Quota funnel
	FreeUses        int           `envconfig:"FREE_USES" default:"1" validate:"min=0"`
	SubUses         int           `envconfig:"SUB_USES" default:"1" validate:"min=0"`
	MaxUsesPerMonth int           `envconfig:"MAX_USES_PER_MONTH" default:"50" validate:"min=0"`
	SubCheckTimeout time.Duration `envconfig:"SUB_CHECK_TIMEOUT" default:"10s" validate:"gt=0"`

	// Storage
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	DBPath      string `envconfig:"DB_PATH" default:"data/bot.db" validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=DBDriver postgres"`

	// Operator HTTP API, off when HTTPAddr is empty
	HTTPAddr             string        `envconfig:"HTTP_ADDR"`
	OperatorJWTSecret    string        `envconfig:"OPERATOR_JWT_SECRET" validate:"required_with=HTTPAddr,omitempty,min=16"`
	OperatorPasswordHash string        `envconfig:"OPERATOR_PASSWORD_HASH" validate:"required_with=HTTPAddr"`
	OperatorTokenTTL     time.Duration `envconfig:"OPERATOR_TOKEN_TTL" default:"12h" validate:"gt=0"`

	// Logging
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// Load reads envFiles (missing files are skipped), then the environment,
// then validates.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their environment variable name, so errors
// read "BOT_TOKEN" rather than "BotToken".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks every field and returns all problems joined.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: validating: %w", err)
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if strings.HasPrefix(fe.Tag(), "required") {
			errs = append(errs, apperror.ConfigMissing(fe.Field()))
			continue
		}
		errs = append(errs, apperror.ValidationFailed(fe.Field(),
			fmt.Sprintf("%s fails %q (value %v)", fe.Field(), describeTag(fe), fe.Value())))
	}
	return errors.Join(errs...)
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Limits returns the quota thresholds.
func (c *Config) Limits() quota.Limits {
	return quota.Limits{
		FreeUses:              c.FreeUses,
		SubscriptionBonusUses: c.SubUses,
		MonthlyHardCap:        c.MaxUsesPerMonth,
	}
}

// MaxImageBytes converts MaxMB to bytes.
func (c *Config) MaxImageBytes() int64 {
	return int64(c.MaxMB) << 20
}

// HTTPEnabled reports whether the operator API should be served.
func (c *Config) HTTPEnabled() bool {
	return c.HTTPAddr != ""
}
