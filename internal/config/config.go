package config

import (
	"fmt"
	"os"
)

type Config struct {
	// DatabaseURL points at the primary application database. The backup
	// registry tables live in the same database, which is why a restore
	// must reconcile the registry afterwards.
	DatabaseURL     string
	AuthDatabaseURL string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	ArchiveDir      string
	UploadDir       string
	ConfigDir       string
	HTTPListenAddr  string
	LogLevel        string
	ServiceName     string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		AuthDatabaseURL: getEnv("AUTH_DATABASE_URL", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		ArchiveDir:      getEnv("ARCHIVE_DIR", "/var/backups/clavora"),
		UploadDir:       getEnv("UPLOAD_DIR", ""),
		ConfigDir:       getEnv("CONFIG_DIR", ""),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8090"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ServiceName:     getEnv("SERVICE_NAME", "backupd"),
	}

	return cfg, nil
}

// Validate checks that the fields required to run the backup service are set.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ArchiveDir == "" {
		return fmt.Errorf("ARCHIVE_DIR is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
