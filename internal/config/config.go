package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	Timezone            string
	HourlySendLimit     int
	DailySendLimit      int
	NewsletterBatchSize int
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MAILCORE_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("MAILCORE_ENCRYPTION_KEY_BASE64"),
		DBHost:              getEnvOrDefault("MAILCORE_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("MAILCORE_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("MAILCORE_DB_USER", "mailcore"),
		DBPassword:          os.Getenv("MAILCORE_DB_PASSWORD"),
		DBName:              getEnvOrDefault("MAILCORE_DB_NAME", "mailcore"),
		DBSSLMode:           getEnvOrDefault("MAILCORE_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
		HourlySendLimit:     getEnvIntOrDefault("MAILCORE_HOURLY_SEND_LIMIT", 500),
		DailySendLimit:      getEnvIntOrDefault("MAILCORE_DAILY_SEND_LIMIT", 2000),
		NewsletterBatchSize: getEnvIntOrDefault("MAILCORE_NEWSLETTER_BATCH_SIZE", 50),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("MAILCORE_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("MAILCORE_DB_PASSWORD is required")
	}

	if c.HourlySendLimit <= 0 || c.DailySendLimit <= 0 {
		return fmt.Errorf("send limits must be positive")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
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
