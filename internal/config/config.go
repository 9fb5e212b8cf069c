// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Store backends.
const (
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Transports.
const (
	TransportTelegram = "telegram"
	TransportWeb      = "web"
)

// Config holds all application configuration.
type Config struct {
	Transports     []string      `env:"TRANSPORTS" validate:"min=1,dive,oneof=telegram web"`
	TelegramToken  string        `env:"TELEGRAM_TOKEN"`
	Port           string        `env:"PORT" validate:"required,numeric"`
	FrontendURL    string        `env:"FRONTEND_URL" validate:"omitempty,url"`
	GRPCHealthAddr string        `env:"GRPC_HEALTH_ADDR" validate:"omitempty,hostname_port"`
	SessionTTL     time.Duration `env:"SESSION_TTL" validate:"gt=0"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" validate:"gt=0"`
	Timezone       string        `env:"TIMEZONE" validate:"required"`
	LogLevel       string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFile        string        `env:"LOG_FILE"`
	Store          StoreConfig

	// Location is Timezone resolved by Load.
	Location *time.Location `validate:"-"`
}

// StoreConfig selects and configures the record backend.
type StoreConfig struct {
	Backend           string `env:"STORE_BACKEND" validate:"oneof=sheets sqlite memory"`
	SpreadsheetID     string `env:"SPREADSHEET_ID" validate:"required_if=Backend sheets"`
	CredentialsBase64 string `env:"GOOGLE_CREDS_BASE64" validate:"required_if=Backend sheets"`
	SheetName         string `env:"SHEET_NAME" validate:"required_if=Backend sheets"`
	DBPath            string `env:"DB_PATH" validate:"required_if=Backend sqlite"`
}

var validate = newValidator()

// serverFields are ignored by LoadForCLI.
var serverFields = []string{"Transports", "TelegramToken", "Port", "FrontendURL", "GRPCHealthAddr", "SessionTTL"}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report env var names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Load reads configuration from environment variables. Any error is a
// *domain.FatalConfigError.
func Load() (*Config, error) {
	return load(false)
}

// LoadForCLI is Load without the server and transport settings, for the
// one-shot record commands.
func LoadForCLI() (*Config, error) {
	return load(true)
}

func load(cliOnly bool) (*Config, error) {
	cfg := &Config{
		Transports:     getEnvList("TRANSPORTS", []string{TransportTelegram, TransportWeb}),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		StoreTimeout:   getEnvDuration("STORE_TIMEOUT", 15*time.Second),
		Timezone:       getEnv("TIMEZONE", "Local"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:        getEnv("LOG_FILE", ""),
		Store: StoreConfig{
			Backend:           strings.ToLower(getEnv("STORE_BACKEND", BackendSheets)),
			SpreadsheetID:     getEnv("SPREADSHEET_ID", ""),
			CredentialsBase64: getEnv("GOOGLE_CREDS_BASE64", ""),
			SheetName:         getEnv("SHEET_NAME", "Sheet1"),
			DBPath:            getEnv("DB_PATH", "./data/trainbot.db"),
		},
	}

	validateFn := cfg.Validate
	if cliOnly {
		validateFn = cfg.validateStore
	}
	if err := validateFn(); err != nil {
		return nil, &domain.FatalConfigError{Err: err}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, &domain.FatalConfigError{Err: fmt.Errorf("TIMEZONE: %w", err)}
	}
	cfg.Location = loc

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	msgs := describeAll(validate.Struct(c))
	if c.HasTransport(TransportTelegram) && c.TelegramToken == "" {
		msgs = append(msgs, "TELEGRAM_TOKEN is required")
	}
	return joinMessages(msgs)
}

func (c *Config) validateStore() error {
	return joinMessages(describeAll(validate.StructExcept(c, serverFields...)))
}

func describeAll(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return msgs
}

func joinMessages(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return name + " is required"
	case "gt":
		return name + " must be a positive duration"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return name + " must list at least one entry"
	}
	return fmt.Sprintf("%s is invalid (%s)", name, fe.Tag())
}

// HasTransport reports whether name is enabled.
func (c *Config) HasTransport(name string) bool {
	for _, t := range c.Transports {
		if t == name {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvDuration accepts Go durations ("90s") or bare seconds. Unparseable
// values yield -1 so validation rejects them.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return -1
}
