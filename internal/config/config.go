// Package config loads the application settings from defaults, an optional
// .env file, environment variables and command-line flags, in increasing
// order of priority, and validates the result.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
)

// Config holds every setting the application consumes.
type Config struct {
	RunAddr  string `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel string `env:"LOG_LEVEL" validate:"loglevel"`

	DatabaseDSN         string        `env:"DATABASE_DSN"`
	DatabaseDriver      string        `env:"DATABASE_DRIVER" validate:"oneof=pgx postgres"`
	MigrationsDir       string        `env:"MIGRATIONS_DIR"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	DBFileName          string        `env:"FILE_STORAGE_PATH" validate:"omitempty,filepath"`

	AppwriteEndpoint        string `env:"APPWRITE_ENDPOINT" validate:"omitempty,url"`
	AppwriteProject         string `env:"APPWRITE_PROJECT"`
	AppwriteKey             string `env:"APPWRITE_KEY"`
	AppwriteDatabaseID      string `env:"APPWRITE_DATABASE_ID"`
	UserCollectionID        string `env:"APPWRITE_USER_COLLECTION_ID" validate:"required"`
	BankCollectionID        string `env:"APPWRITE_BANK_COLLECTION_ID" validate:"required"`
	TransactionCollectionID string `env:"APPWRITE_TRANSACTION_COLLECTION_ID" validate:"required"`
	SessionCookieName       string `env:"SESSION_COOKIE_NAME" validate:"required"`
	ShareableIDSecret       string `env:"SHAREABLE_ID_SECRET" validate:"required"`

	DwollaEnv     string `env:"DWOLLA_ENV"`
	DwollaKey     string `env:"DWOLLA_KEY"`
	DwollaSecret  string `env:"DWOLLA_SECRET"`
	DwollaBaseURL string `env:"DWOLLA_BASE_URL" validate:"omitempty,url"`

	PlaidClientID   string `env:"PLAID_CLIENT_ID"`
	PlaidSecret     string `env:"PLAID_SECRET"`
	PlaidEnv        string `env:"PLAID_ENV" validate:"oneof=sandbox development production"`
	PlaidBaseURL    string `env:"PLAID_BASE_URL" validate:"omitempty,url"`
	PlaidWebhookURL string `env:"PLAID_WEBHOOK_URL" validate:"omitempty,url"`

	PlaidWebhookTrustedSubnet string `env:"PLAID_WEBHOOK_TRUSTED_SUBNET" validate:"omitempty,cidr"`

	VendorTimeout   time.Duration `env:"VENDOR_TIMEOUT"`
	RedisAddr       string        `env:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	PageCacheTTL    time.Duration `env:"PAGE_CACHE_TTL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// placeholderShareableIDSecret lets the sandbox run out of the box. It is
// refused once either vendor points at production.
const placeholderShareableIDSecret = "change-me-in-production"

var defaultConfig = Config{
	RunAddr:                 ":8080",
	LogLevel:                "info",
	DatabaseDriver:          "pgx",
	MigrationsDir:           "cmd/jjbank/migrations",
	DBConnectionTimeout:     10 * time.Second,
	UserCollectionID:        "users",
	BankCollectionID:        "banks",
	TransactionCollectionID: "transactions",
	SessionCookieName:       "appwrite-session",
	ShareableIDSecret:       placeholderShareableIDSecret,
	DwollaEnv:               "sandbox",
	PlaidEnv:                "sandbox",
	VendorTimeout:           30 * time.Second,
	PageCacheTTL:            5 * time.Minute,
	ShutdownTimeout:         10 * time.Second,
}

// InitOption customizes the behaviour of New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	envFiles            []string
}

// WithDisableFlagsParsing turns off command-line parsing, which tests need
// because `go test` owns os.Args.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithEnvFiles replaces the default ".env" file list.
func WithEnvFiles(files ...string) InitOption {
	return func(options *initOptions) {
		options.envFiles = files
	}
}

// New builds a validated Config.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		envFiles:            []string{".env"},
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(options.envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := Config{}
	applyDefaults(&values, defaultConfig)

	if err := env.Parse(&values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	if !options.disableFlagsParsing {
		if err := values.parseFlags(os.Args[1:]); err != nil {
			return nil, err
		}
	}

	if err := values.validate(); err != nil {
		return nil, err
	}

	return &values, nil
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("jjbank", flag.ContinueOnError)
	flags.StringVar(&c.RunAddr, "a", c.RunAddr, "address and port to run server")
	flags.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flags.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "a string with the database connection details")
	flags.StringVar(&c.DBFileName, "f", c.DBFileName, "JSON file name with documents")
	flags.StringVar(&c.MigrationsDir, "m", c.MigrationsDir, "directory with the database migrations")
	flags.StringVar(&c.DwollaEnv, "dwolla-env", c.DwollaEnv, "Dwolla environment: sandbox or production")
	flags.StringVar(&c.PlaidEnv, "plaid-env", c.PlaidEnv, "Plaid environment: sandbox, development or production")
	flags.StringVar(&c.PlaidWebhookTrustedSubnet, "t", c.PlaidWebhookTrustedSubnet, "trusted subnet (CIDR) for the Plaid webhook, empty allows any source")
	flags.StringVar(&c.RedisAddr, "r", c.RedisAddr, "redis address for the page cache")

	return flags.Parse(args)
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.ShareableIDSecret == placeholderShareableIDSecret && (c.DwollaEnv == "production" || c.PlaidEnv == "production") {
		return fmt.Errorf("%w: SHAREABLE_ID_SECRET must be set for production", apperr.ErrConfiguration)
	}

	return nil
}
