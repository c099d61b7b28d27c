// Package config loads settings from config.toml, a .env file and the
// environment. Environment variables win over the config file; keys map to
// variables by upper-casing and replacing dots, e.g. trello.api_key is
// TRELLO_API_KEY.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

var ErrMissingCredentials = errors.New("missing API credentials")

type Config struct {
	Trello  TrelloConfig
	OpenAI  OpenAIConfig
	Planner PlannerConfig
	Server  ServerConfig
}

type TrelloConfig struct {
	APIKey  string
	Token   string
	BaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type PlannerConfig struct {
	MaxAttempts uint
	RetryDelay  time.Duration
}

type ServerConfig struct {
	Port string
}

// New returns a viper instance that searches for config.toml in paths
// (the working directory if none are given) and reads the environment.
func New(paths ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("trello.base_url", "https://api.trello.com/1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("planner.max_attempts", 3)
	v.SetDefault("planner.retry_delay", 5*time.Second)
	v.SetDefault("server.port", "8080")

	return v
}

// LoadDotEnv exports the variables in path that are not already set. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file if one exists and fails with
// ErrMissingCredentials naming every missing key.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Trello: TrelloConfig{
			APIKey:  strings.TrimSpace(v.GetString("trello.api_key")),
			Token:   strings.TrimSpace(v.GetString("trello.token")),
			BaseURL: v.GetString("trello.base_url"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(v.GetString("openai.api_key")),
			Model:   v.GetString("openai.model"),
			BaseURL: v.GetString("openai.base_url"),
		},
		Planner: PlannerConfig{
			MaxAttempts: v.GetUint("planner.max_attempts"),
			RetryDelay:  v.GetDuration("planner.retry_delay"),
		},
		Server: ServerConfig{
			Port: v.GetString("server.port"),
		},
	}

	var missing []string
	if cfg.Trello.APIKey == "" {
		missing = append(missing, "TRELLO_API_KEY")
	}
	if cfg.Trello.Token == "" {
		missing = append(missing, "TRELLO_TOKEN")
	}
	if cfg.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: set %s in the environment, .env or config.toml", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	return cfg, nil
}
