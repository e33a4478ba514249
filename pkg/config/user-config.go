package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// UserConfig holds the operator-editable settings, loaded from a YAML file
// and overridable with BOOKDROP_-prefixed environment variables.
type UserConfig struct {
	WatchDirectory       string `koanf:"watch_directory" json:"watch_directory"`
	DestinationDirectory string `koanf:"destination_directory" json:"destination_directory" default:"Books"`
	GoogleBooksAPIKey    string `koanf:"google_books_api_key" json:"-"`
	DebounceSeconds      int    `koanf:"debounce_seconds" json:"debounce_seconds" default:"1"`
	PDFWorkers           int    `koanf:"pdf_workers" json:"pdf_workers" default:"2"`
}

const envPrefix = "BOOKDROP_"

func userConfigFilePath() string {
	configDir := os.Getenv("CONFIG_DIRECTORY")
	if configDir == "" {
		configDir = "/config"
	}

	return filepath.Join(configDir, "config.yaml")
}

func loadUserConfig(configFilePath string) (*UserConfig, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configFilePath); err == nil {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load user config %q", configFilePath)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.WithStack(err)
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	userConfig := &UserConfig{}
	if err := defaults.Set(userConfig); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := k.Unmarshal("", userConfig); err != nil {
		return nil, errors.Wrap(err, "parse user config")
	}

	return userConfig, nil
}
