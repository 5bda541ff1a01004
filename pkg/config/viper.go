package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads <configPath>/<configName>.yaml when present and layers
// environment variables over it. A missing file is not an error; the
// service then runs on defaults plus environment.
func Load(configPath, configName string) (*viper.Viper, error) {
	// A .env file in the working directory seeds the environment without
	// overriding variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// server.port -> SERVER_PORT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return v, nil
}

// SetDefaults registers every key/value pair in defaults on v.
func SetDefaults(v *viper.Viper, defaults map[string]interface{}) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// BindEnvs binds config keys to explicit environment variable names.
func BindEnvs(v *viper.Viper, bindings map[string]string) error {
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// Duration reads key as a duration string ("30s", "1h"), falling back to def
// when the value is missing or malformed.
func Duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
