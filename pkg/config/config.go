package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var (
	envMu       sync.Mutex
	envFilePath string
	exported    = map[string]bool{}
)

// SetEnvFile selects the env file read by later New calls. Empty falls back
// to ./.env when present.
func SetEnvFile(path string) {
	envMu.Lock()
	defer envMu.Unlock()
	envFilePath = strings.TrimSpace(path)
}

func New[T any](prefix string) (*T, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("load %s config: %w", strings.ToUpper(prefix), err)
	}

	return &conf, nil
}

func loadEnvFile() error {
	envMu.Lock()
	defer envMu.Unlock()

	path := envFilePath
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if exported[path] {
		return nil
	}

	var err error
	if explicit {
		err = exportEnvironment(path)
	} else {
		err = exportEnvironmentIfExists(path)
	}
	if err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	exported[path] = true
	return nil
}

func exportEnvironmentIfExists(filepath string) error {
	info, err := os.Stat(filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(filepath)
}

// exportEnvironment copies the file's keys into the process environment.
// Variables already set in the environment win over the file.
func exportEnvironment(filepath string) error {
	v := viper.New()
	v.SetConfigFile(filepath)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}

	return nil
}
