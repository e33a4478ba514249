package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	Hostname                  string
	ServerHost                string
	ServerPort                int

	WatchDirectory     string
	DestinationDirName string
	DebounceInterval   time.Duration
	CatalogEndpoint    string
	CatalogAPIKey      string
	PDFWorkers         int

	UserConfigFilePath string
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		Hostname:                  hostname,
		ServerPort:                3690,
		CatalogEndpoint:           "https://www.googleapis.com/books/v1/volumes",
		UserConfigFilePath:        userConfigFilePath(),
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	userConfig, err := loadUserConfig(cfg.UserConfigFilePath)
	if err != nil {
		return nil, err
	}
	applyUserConfig(cfg, userConfig)

	return cfg, nil
}

func applyUserConfig(cfg *Config, userConfig *UserConfig) {
	if userConfig.WatchDirectory != "" {
		cfg.WatchDirectory = userConfig.WatchDirectory
	}
	cfg.DestinationDirName = userConfig.DestinationDirectory
	cfg.CatalogAPIKey = userConfig.GoogleBooksAPIKey
	cfg.DebounceInterval = time.Duration(userConfig.DebounceSeconds) * time.Second
	cfg.PDFWorkers = userConfig.PDFWorkers
}
