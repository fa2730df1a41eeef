package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ultralytics/stars/internal/model"
)

const (
	defaultOrg       = "ultralytics"
	defaultSubreddit = "ultralytics"
	defaultDataDir   = "data"
	defaultOutput    = "data/org_stars.json"
	defaultReposFile = "repos.yaml"
	defaultEnvFile   = ".env"
	defaultTimeout   = 60 * time.Second
	defaultRunLimit  = 30 * time.Minute
	defaultUserAgent = "orgstats/1.0"
)

// Config is the resolved configuration of every orgstats command
type Config struct {
	Org          string   `mapstructure:"org"`
	GitHubToken  string   `mapstructure:"github-token"`
	PepyAPIKey   string   `mapstructure:"pepy-api-key"`
	GACredential string   `mapstructure:"ga-credentials-json"` // JSON content or a path to the key file
	GAPropertyID string   `mapstructure:"ga-property-id"`
	Subreddit    string   `mapstructure:"subreddit"`
	PyPIPackages []string `mapstructure:"pypi-packages"`

	DataDir   string `mapstructure:"data-dir"`
	Output    string `mapstructure:"output"`
	ReposFile string `mapstructure:"repos-file"`

	HistoryDB  string `mapstructure:"history-db"`
	PGDSN      string `mapstructure:"pg-dsn"`
	PGMaxConns int    `mapstructure:"pg-max-conns"`

	Timeout     time.Duration `mapstructure:"timeout"` // whole command, ORGSTATS_TIMEOUT
	HTTPTimeout time.Duration `mapstructure:"http-timeout"`
	UserAgent   string        `mapstructure:"user-agent"`

	RetryMaxAttempts  int           `mapstructure:"retry-max-attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry-initial-delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry-max-delay"`
	RetryMultiplier   float64       `mapstructure:"retry-multiplier"`
	RetryJitter       bool          `mapstructure:"retry-jitter"`

	PacingGraphQLPage time.Duration `mapstructure:"pacing-graphql-page"`
	PacingRepo        time.Duration `mapstructure:"pacing-repo"`
	PacingPackage     time.Duration `mapstructure:"pacing-package"`
	PacingUserLookup  time.Duration `mapstructure:"pacing-user-lookup"`

	ConfigPath string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("org", defaultOrg)
	v.SetDefault("github-token", "")
	v.SetDefault("pepy-api-key", "")
	v.SetDefault("ga-credentials-json", "")
	v.SetDefault("ga-property-id", model.DefaultAnalyticsProp)
	v.SetDefault("subreddit", defaultSubreddit)
	v.SetDefault("pypi-packages", model.DefaultPyPIPackages)
	v.SetDefault("data-dir", defaultDataDir)
	v.SetDefault("output", defaultOutput)
	v.SetDefault("repos-file", defaultReposFile)
	v.SetDefault("history-db", "")
	v.SetDefault("pg-dsn", "")
	v.SetDefault("pg-max-conns", 2)
	v.SetDefault("timeout", defaultRunLimit)
	v.SetDefault("http-timeout", defaultTimeout)
	v.SetDefault("user-agent", defaultUserAgent)
	v.SetDefault("retry-max-attempts", model.DefaultRetryConfig.MaxAttempts)
	v.SetDefault("retry-initial-delay", model.DefaultRetryConfig.InitialDelay)
	v.SetDefault("retry-max-delay", model.DefaultRetryConfig.MaxDelay)
	v.SetDefault("retry-multiplier", model.DefaultRetryConfig.BackoffMultiplier)
	v.SetDefault("retry-jitter", model.DefaultRetryConfig.Jitter)
	v.SetDefault("pacing-graphql-page", model.DefaultPacing.GraphQLPage)
	v.SetDefault("pacing-repo", model.DefaultPacing.Repo)
	v.SetDefault("pacing-package", model.DefaultPacing.Package)
	v.SetDefault("pacing-user-lookup", model.DefaultPacing.UserLookup)
}

// Load resolves configuration from defaults, an optional YAML file, a .env
// file and the environment, later sources winning. Keys map to unprefixed
// environment variables with dashes turned into underscores, so
// "github-token" is read from GITHUB_TOKEN.
//
// An empty envFile loads ".env" when it exists. An explicitly named config or
// env file that does not exist is an error.
func Load(configPath, envFile string) (Config, error) {
	var cfg Config

	if err := loadEnvFile(envFile); err != nil {
		return cfg, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	setDefaults(v)
	// TIMEOUT alone is too generic to claim
	if err := v.BindEnv("timeout", "ORGSTATS_TIMEOUT"); err != nil {
		return cfg, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if errors.As(err, &configFileNotFound) || os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file %s not found", configPath)
			}
			return cfg, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadEnvFile(envFile string) error {
	path := envFile
	if path == "" {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) && envFile == "" {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() error {
	c.Org = strings.TrimSpace(c.Org)
	if c.Org == "" {
		return fmt.Errorf("org must not be empty")
	}
	c.Subreddit = strings.TrimPrefix(strings.TrimSpace(c.Subreddit), "r/")

	var packages []string
	for _, p := range c.PyPIPackages {
		for _, part := range strings.Split(p, ",") {
			if part = strings.TrimSpace(part); part != "" {
				packages = append(packages, part)
			}
		}
	}
	c.PyPIPackages = packages

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("invalid retry-max-attempts: %d", c.RetryMaxAttempts)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("invalid retry-multiplier: %v", c.RetryMultiplier)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %v", c.Timeout)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid http-timeout: %v", c.HTTPTimeout)
	}

	cred, err := resolveCredentials(c.GACredential)
	if err != nil {
		return err
	}
	c.GACredential = cred
	return nil
}

// resolveCredentials accepts service account JSON inline or as a file path
func resolveCredentials(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "{") {
		return value, nil
	}
	data, err := os.ReadFile(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("reading GA credentials file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// CollectSpec returns the sources to poll
func (c Config) CollectSpec() model.CollectSpec {
	return model.CollectSpec{
		Org:                  c.Org,
		GitHubToken:          c.GitHubToken,
		PyPIPackages:         c.PyPIPackages,
		PepyAPIKey:           c.PepyAPIKey,
		AnalyticsPropertyID:  c.GAPropertyID,
		AnalyticsCredentials: c.GACredential,
		Subreddit:            c.Subreddit,
	}
}

// Retry returns the outbound retry policy
func (c Config) Retry() model.RetryConfig {
	return model.RetryConfig{
		MaxAttempts:       c.RetryMaxAttempts,
		InitialDelay:      c.RetryInitialDelay,
		MaxDelay:          c.RetryMaxDelay,
		BackoffMultiplier: c.RetryMultiplier,
		Jitter:            c.RetryJitter,
	}
}

// Pacing returns the fixed sleeps between upstream calls
func (c Config) Pacing() model.Pacing {
	return model.Pacing{
		GraphQLPage: c.PacingGraphQLPage,
		Repo:        c.PacingRepo,
		Package:     c.PacingPackage,
		UserLookup:  c.PacingUserLookup,
	}
}
