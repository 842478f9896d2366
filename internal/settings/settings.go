// Package settings loads user-level preferences from <home>/settings.yaml
// and OPENCLI_* environment variables.
package settings

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"opencli/internal/paths"
	"opencli/internal/retry"
	"opencli/internal/tools"
)

// EnvPrefix is the prefix of environment overrides, e.g. OPENCLI_CONCURRENCY.
const EnvPrefix = "OPENCLI"

// Settings are the user preferences shared by every project.
type Settings struct {
	GitHubToken        string        `mapstructure:"github_token"`
	Concurrency        int           `mapstructure:"concurrency"`
	Retry              RetrySettings `mapstructure:"retry"`
	CompilersConfigURL string        `mapstructure:"compilers_config_url"`
}

// RetrySettings bound retries of registry calls and downloads.
type RetrySettings struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// Default returns the built-in settings.
func Default() Settings {
	p := retry.Default()
	return Settings{
		Concurrency: 4,
		Retry: RetrySettings{
			MaxAttempts:     p.MaxAttempts,
			InitialInterval: p.InitialInterval,
			MaxInterval:     p.MaxInterval,
		},
		CompilersConfigURL: tools.DefaultConfigURL,
	}
}

// Policy converts the retry settings.
func (s Settings) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     s.Retry.MaxAttempts,
		InitialInterval: s.Retry.InitialInterval,
		MaxInterval:     s.Retry.MaxInterval,
	}
}

// Load reads the settings file of home when present and applies environment
// overrides. GITHUB_TOKEN is used when no token is configured.
func Load(home paths.HomePaths) (Settings, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("github_token", defaults.GitHubToken)
	v.SetDefault("concurrency", defaults.Concurrency)
	v.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", defaults.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", defaults.Retry.MaxInterval)
	v.SetDefault("compilers_config_url", defaults.CompilersConfigURL)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if home.SettingsFile != "" {
		ok, err := paths.FileExists(home.SettingsFile)
		if err != nil {
			return Settings{}, err
		}
		if ok {
			v.SetConfigFile(home.SettingsFile)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Settings{}, fmt.Errorf("read settings %s: %w", home.SettingsFile, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if s.GitHubToken == "" {
		s.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects values that would disable installs outright.
func (s Settings) Validate() error {
	if s.Concurrency < 1 {
		return fmt.Errorf("settings: concurrency must be >= 1, got %d", s.Concurrency)
	}
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("settings: retry.max_attempts must be >= 1, got %d", s.Retry.MaxAttempts)
	}
	if s.Retry.InitialInterval < 0 || s.Retry.MaxInterval < 0 {
		return fmt.Errorf("settings: retry intervals must not be negative")
	}
	return nil
}
