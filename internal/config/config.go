// Package config содержит логику чтения конфигурации сервиса библиотеки.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса библиотеки.
type Config struct {
	RunAddress           string        `env:"RUN_ADDRESS"`
	DatabaseFile         string        `env:"DATABASE_FILE"`
	BackupDir            string        `env:"BACKUP_DIR"`
	BackupInterval       time.Duration `env:"BACKUP_INTERVAL"`
	CoversServiceAddress string        `env:"COVERS_SERVICE_ADDRESS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseFile := cfg.DatabaseFile
	envBackupDir := cfg.BackupDir
	envBackupInterval := cfg.BackupInterval
	envCoversAddress := cfg.CoversServiceAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseFile, "f", "data/db.json", "path to database file")
	flag.StringVar(&cfg.BackupDir, "b", "data/backups", "directory for database backups")
	flag.DurationVar(&cfg.BackupInterval, "i", 24*time.Hour, "interval between backups")
	flag.StringVar(&cfg.CoversServiceAddress, "c", "", "book covers service address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseFile != "" {
		cfg.DatabaseFile = envDatabaseFile
	}
	if envBackupDir != "" {
		cfg.BackupDir = envBackupDir
	}
	if envBackupInterval != 0 {
		cfg.BackupInterval = envBackupInterval
	}
	if envCoversAddress != "" {
		cfg.CoversServiceAddress = envCoversAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = "data/db.json"
	}

	return cfg, nil
}
