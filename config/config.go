// Package config loads the login server configuration from YAML and
// LOGIN_ prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	login "github.com/goliatone/go-login"
	"github.com/spf13/viper"
)

const EnvPrefix = "LOGIN"

type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	// URL enables the redis stores when set, e.g. redis://localhost:6379/0
	URL string `mapstructure:"url" yaml:"url"`
}

type AuthConfig struct {
	BasePath             string        `mapstructure:"base_path" yaml:"base_path"`
	PagePath             string        `mapstructure:"page_path" yaml:"page_path"`
	SessionCookieName    string        `mapstructure:"session_cookie_name" yaml:"session_cookie_name"`
	SecureCookie         bool          `mapstructure:"secure_cookie" yaml:"secure_cookie"`
	SessionTTL           time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	RememberedSessionTTL time.Duration `mapstructure:"remembered_session_ttl" yaml:"remembered_session_ttl"`
	CarriedTTL           time.Duration `mapstructure:"carried_ttl" yaml:"carried_ttl"`
	OperationTimeout     time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	HashAlgorithm        string        `mapstructure:"hash_algorithm" yaml:"hash_algorithm"`
	HashCost             int           `mapstructure:"hash_cost" yaml:"hash_cost"`
	HashWorkers          int           `mapstructure:"hash_workers" yaml:"hash_workers"`
	Pepper               string        `mapstructure:"pepper" yaml:"pepper"`
	SigningKey           string        `mapstructure:"signing_key" yaml:"signing_key"`
	LanguageRedirect     bool          `mapstructure:"language_redirect" yaml:"language_redirect"`
}

// Config is the full server configuration. It implements login.Config.
type Config struct {
	Server    ServerConfig     `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Redis     RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Auth      AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Languages []login.Language `mapstructure:"languages" yaml:"languages"`
}

var defaults = map[string]any{
	"server.address":              ":8080",
	"server.debug":                false,
	"database.driver":             "sqlite",
	"database.dsn":                "file:login.db?cache=shared",
	"redis.url":                   "",
	"auth.base_path":              "",
	"auth.page_path":              "login",
	"auth.session_cookie_name":    login.DefaultSessionCookie,
	"auth.secure_cookie":          false,
	"auth.session_ttl":            2 * time.Hour,
	"auth.remembered_session_ttl": 30 * 24 * time.Hour,
	"auth.carried_ttl":            5 * time.Minute,
	"auth.operation_timeout":      login.DefaultOperationTimeout,
	"auth.hash_algorithm":         login.HashAlgorithmBcrypt,
	"auth.hash_cost":              0,
	"auth.hash_workers":           0,
	"auth.pepper":                 "",
	"auth.signing_key":            "",
	"auth.language_redirect":      false,
}

var defaultLanguages = []login.Language{
	{ID: "en", Name: "English", Locale: "en_US"},
	{ID: "de", Name: "Deutsch", Locale: "de_DE"},
}

// Load reads path, when given, and applies env overrides and defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Languages) == 0 {
		cfg.Languages = append([]login.Language(nil), defaultLanguages...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	// LOGIN_AUTH_SIGNING_KEY overrides auth.signing_key
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		return
	}

	v.AddConfigPath(".")
	v.SetConfigName("login")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Validate will run validation rules
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&c.Database.DSN, validation.Required),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.PagePath, validation.Required),
		validation.Field(&c.Auth.SessionCookieName, validation.Required),
		validation.Field(&c.Auth.HashAlgorithm, validation.In(login.HashAlgorithmBcrypt, login.HashAlgorithmArgon2id)),
		validation.Field(&c.Auth.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Auth.Pepper, validation.Required, validation.Length(16, 0)),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	return nil
}

func (c *Config) GetBasePath() string                    { return c.Auth.BasePath }
func (c *Config) GetPagePath() string                    { return c.Auth.PagePath }
func (c *Config) GetSessionCookieName() string           { return c.Auth.SessionCookieName }
func (c *Config) GetSessionTTL() time.Duration           { return c.Auth.SessionTTL }
func (c *Config) GetRememberedSessionTTL() time.Duration { return c.Auth.RememberedSessionTTL }
func (c *Config) GetCarriedTTL() time.Duration           { return c.Auth.CarriedTTL }
func (c *Config) GetOperationTimeout() time.Duration     { return c.Auth.OperationTimeout }
func (c *Config) GetHashAlgorithm() string               { return c.Auth.HashAlgorithm }
func (c *Config) GetHashCost() int                       { return c.Auth.HashCost }
func (c *Config) GetPepper() string                      { return c.Auth.Pepper }
func (c *Config) GetSigningKey() string                  { return c.Auth.SigningKey }
func (c *Config) GetLanguageRedirect() bool              { return c.Auth.LanguageRedirect }
func (c *Config) GetLanguages() []login.Language         { return c.Languages }
func (c *Config) GetDebug() bool                         { return c.Server.Debug }

var _ login.Config = (*Config)(nil)
