package config

import (
	"os"
	"strconv"
)

func loadDevelopmentConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	cfg.DatabaseDebug = true
	cfg.DatabaseFilePath = "./tmp/history.sqlite"
	cfg.ServerHost = "127.0.0.1"
	cfg.WatchDirectory = "./tmp/dropbox"
}

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = "file::memory:?cache=shared"
	cfg.ServerHost = "127.0.0.1"
	cfg.WatchDirectory = "./tmp/dropbox"
}

func loadProductionConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	cfg.DatabaseFilePath = "/config/history.sqlite"
	cfg.ServerHost = "0.0.0.0"
	cfg.WatchDirectory = "/dropbox"
}
