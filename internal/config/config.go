package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMongoDB = "mongodb"
	StorageMemory  = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Catalog   CatalogConfig
	Dashboard DashboardConfig
	Schedule  ScheduleConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Driver string `validate:"required,oneof=mongodb memory"`
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// CatalogConfig points at the crop reference service.
type CatalogConfig struct {
	BaseURL string        `validate:"omitempty,url"`
	Timeout time.Duration `validate:"gt=0"`
}

// DashboardConfig bounds dashboard aggregation.
type DashboardConfig struct {
	Timeout time.Duration `validate:"gt=0"`
}

// ScheduleConfig holds the cron jobs settings.
type ScheduleConfig struct {
	TaskSyncCron    string `validate:"required,cron"`
	LedgerFlushCron string `validate:"required,cron"`
	DigestCron      string `validate:"required,cron"`
	Timezone        string `validate:"required,timezone"`
}

// WhatsAppConfig contains credentials for digest delivery over the Meta
// WhatsApp Cloud API. Delivery is disabled when AccessToken is empty.
type WhatsAppConfig struct {
	AccessToken     string
	PhoneNumberID   string
	BaseURL         string `validate:"required,url"`
	APIVersion      string `validate:"required"`
	DigestRecipient string
}

// Enabled reports whether digest delivery is configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != ""
}

// SheetsConfig configures the optional dashboard export to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	catalogTimeout, err := durationWithDefault("CROP_CATALOG_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	dashboardTimeout, err := durationWithDefault("DASHBOARD_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getenvWithDefault("APP_PORT", "8080"),
			LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Driver: getenvWithDefault("STORAGE_DRIVER", StorageMongoDB),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "blockfarm"),
		},
		Catalog: CatalogConfig{
			BaseURL: os.Getenv("CROP_CATALOG_URL"),
			Timeout: catalogTimeout,
		},
		Dashboard: DashboardConfig{
			Timeout: dashboardTimeout,
		},
		Schedule: ScheduleConfig{
			TaskSyncCron:    getenvWithDefault("TASK_SYNC_CRON", "0 5 * * *"),
			LedgerFlushCron: getenvWithDefault("LEDGER_FLUSH_CRON", "*/15 * * * *"),
			DigestCron:      getenvWithDefault("DIGEST_CRON", "0 20 * * 0"),
			Timezone:        getenvWithDefault("TIMEZONE", "Africa/Conakry"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:     os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:   os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:         getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:      getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			DigestRecipient: os.Getenv("WHATSAPP_DIGEST_RECIPIENT"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct tags, then the rules that span sections.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if err := NewValidator().Validate(c); err != nil {
		return err
	}

	if c.Storage.Driver == StorageMongoDB {
		switch {
		case c.MongoDB.URI == "":
			return errors.New("MONGODB_URI must be provided")
		case c.MongoDB.DBName == "":
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	}

	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
		case c.WhatsApp.DigestRecipient == "":
			return errors.New("WHATSAPP_DIGEST_RECIPIENT must be provided")
		}
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be set together")
	}

	return nil
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
