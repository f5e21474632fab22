package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment    string
	DBHost         string
	DBPort         string
	DBUsername     string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	Port           string
	IMAPHost       string
	IMAPPort       int
	IMAPUsername   string
	IMAPPassword   string
	IMAPUseTLS     bool
	ScanBatchSize  int
	UnlabelledMode string
	AttachmentDir  string
	DetachedRatio  float64
	TrashFolder    string
	Timezone       string
}

// Unlabelled detection modes. See db.QueryUnlabelledMessages.
const (
	ModeNoThread    = "no_thread"
	ModeInReplyTo   = "in_reply_to"
	ModeGmailThread = "gmail_thread"
)

func NewConfig() (*Config, error) {
	env := os.Getenv("MAILSWEEP_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:    env,
		DBHost:         getEnvOrDefault("MAILSWEEP_DB_HOST", "localhost"),
		DBPort:         getEnvOrDefault("MAILSWEEP_DB_PORT", "5432"),
		DBUsername:     getEnvOrDefault("MAILSWEEP_DB_USER", "mailsweep"),
		DBPassword:     os.Getenv("MAILSWEEP_DB_PASSWORD"),
		DBName:         getEnvOrDefault("MAILSWEEP_DB_NAME", "mailsweep"),
		DBSSLMode:      getEnvOrDefault("MAILSWEEP_DB_SSLMODE", "disable"),
		Port:           getEnvOrDefault("PORT", "8080"),
		IMAPHost:       os.Getenv("MAILSWEEP_IMAP_HOST"),
		IMAPPort:       getEnvIntOrDefault("MAILSWEEP_IMAP_PORT", 993),
		IMAPUsername:   os.Getenv("MAILSWEEP_IMAP_USERNAME"),
		IMAPPassword:   os.Getenv("MAILSWEEP_IMAP_PASSWORD"),
		IMAPUseTLS:     getEnvBoolOrDefault("MAILSWEEP_IMAP_TLS", true),
		ScanBatchSize:  getEnvIntOrDefault("MAILSWEEP_SCAN_BATCH_SIZE", 500),
		UnlabelledMode: getEnvOrDefault("MAILSWEEP_UNLABELLED_MODE", ModeNoThread),
		AttachmentDir:  getEnvOrDefault("MAILSWEEP_ATTACHMENT_DIR", defaultAttachmentDir()),
		DetachedRatio:  getEnvFloatOrDefault("MAILSWEEP_DETACHED_RATIO", 1.5),
		TrashFolder:    os.Getenv("MAILSWEEP_TRASH_FOLDER"),
		Timezone:       getEnvOrDefault("TZ", "UTC"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("MAILSWEEP_DB_PASSWORD is required")
	}

	if err := validatePort(c.DBPort, "MAILSWEEP_DB_PORT"); err != nil {
		return err
	}

	if err := validatePort(c.Port, "PORT"); err != nil {
		return err
	}

	if c.ScanBatchSize <= 0 {
		return fmt.Errorf("MAILSWEEP_SCAN_BATCH_SIZE must be positive")
	}

	if c.DetachedRatio <= 1.0 {
		return fmt.Errorf("MAILSWEEP_DETACHED_RATIO must be greater than 1.0")
	}

	return nil
}

func validatePort(value, key string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%s is not a valid port number", key)
	}
	return nil
}

// RequireIMAP checks the settings needed to open an IMAP connection.
// Commands that only read the local cache skip this.
func (c *Config) RequireIMAP() error {
	if c.IMAPHost == "" {
		return fmt.Errorf("MAILSWEEP_IMAP_HOST is required")
	}

	if c.IMAPUsername == "" {
		return fmt.Errorf("MAILSWEEP_IMAP_USERNAME is required")
	}

	if c.IMAPPassword == "" {
		return fmt.Errorf("MAILSWEEP_IMAP_PASSWORD is required")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.DBUsername),
		url.QueryEscape(c.DBPassword),
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func (c *Config) GetIMAPAddress() string {
	return fmt.Sprintf("%s:%d", c.IMAPHost, c.IMAPPort)
}

func defaultAttachmentDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "MailSweep_Attachments"
	}
	return filepath.Join(home, "MailSweep_Attachments")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
