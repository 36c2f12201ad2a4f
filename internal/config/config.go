package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LESSONFORGE_STORE_KIND.
const EnvPrefix = "LESSONFORGE"

// Config holds service settings loaded from lessonforge.yml, .env and the
// environment, in increasing order of precedence.
type Config struct {
	Server   ServerConfig   `yaml:"server" split_words:"true"`
	Provider ProviderConfig `yaml:"provider" split_words:"true"`
	Store    StoreConfig    `yaml:"store" split_words:"true"`
	Objects  ObjectsConfig  `yaml:"objects" split_words:"true"`
	Broker   BrokerConfig   `yaml:"broker" split_words:"true"`
	Auth     AuthConfig     `yaml:"auth" split_words:"true"`
	Log      LogConfig      `yaml:"log" split_words:"true"`
	Rollbar  RollbarConfig  `yaml:"rollbar" split_words:"true"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr,omitempty" split_words:"true"`
	AllowedOrigins []string      `yaml:"allowedOrigins,omitempty" split_words:"true"`
	RunTTL         time.Duration `yaml:"runTTL,omitempty" split_words:"true"`
	GopsAddr       string        `yaml:"gopsAddr,omitempty" split_words:"true"`
}

// ProviderConfig selects and configures the generation backend.
// Kind is one of "openai", "ollama" or "canned".
type ProviderConfig struct {
	Kind    string        `yaml:"kind,omitempty" split_words:"true"`
	BaseURL string        `yaml:"baseURL,omitempty" split_words:"true"`
	Model   string        `yaml:"model,omitempty" split_words:"true"`
	APIKey  string        `yaml:"apiKey,omitempty" split_words:"true"`
	Timeout time.Duration `yaml:"timeout,omitempty" split_words:"true"`
}

// StoreConfig selects the record store. Kind is one of "memory",
// "postgres" or "kuzu".
type StoreConfig struct {
	Kind     string `yaml:"kind,omitempty" split_words:"true"`
	DSN      string `yaml:"dsn,omitempty" split_words:"true"`
	KuzuPath string `yaml:"kuzuPath,omitempty" split_words:"true"`
	MaxConns int32  `yaml:"maxConns,omitempty" split_words:"true"`
	Migrate  bool   `yaml:"migrate,omitempty" split_words:"true"`
}

// ObjectsConfig points at the object storage root for uploaded resources.
// Any viant/afs URL works: file://, mem://, s3://, gs://.
type ObjectsConfig struct {
	RootURL string `yaml:"rootURL,omitempty" split_words:"true"`
}

// BrokerConfig configures the AMQP event publisher. An empty URL disables
// publishing.
type BrokerConfig struct {
	URL      string `yaml:"url,omitempty" split_words:"true"`
	Exchange string `yaml:"exchange,omitempty" split_words:"true"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret,omitempty" split_words:"true"`
	Issuer    string        `yaml:"issuer,omitempty" split_words:"true"`
	TokenTTL  time.Duration `yaml:"tokenTTL,omitempty" split_words:"true"`
}

type LogConfig struct {
	Level      string `yaml:"level,omitempty" split_words:"true"`
	Encoding   string `yaml:"encoding,omitempty" split_words:"true"`
	OutputPath string `yaml:"outputPath,omitempty" split_words:"true"`
}

// RollbarConfig enables error reporting when Token is set.
type RollbarConfig struct {
	Token       string `yaml:"token,omitempty" split_words:"true"`
	Environment string `yaml:"environment,omitempty" split_words:"true"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			RunTTL:         10 * time.Minute,
		},
		Provider: ProviderConfig{
			Kind:    "openai",
			BaseURL: "https://api.mistral.ai/v1",
			Model:   "mistral-large-latest",
			Timeout: 120 * time.Second,
		},
		Store: StoreConfig{
			Kind:     "memory",
			MaxConns: 10,
		},
		Objects: ObjectsConfig{RootURL: "mem://localhost/resources"},
		Broker:  BrokerConfig{Exchange: "lessonforge.events"},
		Auth: AuthConfig{
			Issuer:   "lessonforge",
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Rollbar: RollbarConfig{Environment: "development"},
	}
}

// Load builds a Config for the service rooted at dir. It reads
// lessonforge.yml or lessonforge.yaml if present, loads dir/.env into the
// process environment without overriding existing variables, and finally
// applies LESSONFORGE_* environment overrides. A missing file is not an
// error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	for _, name := range []string{"lessonforge.yml", "lessonforge.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		break
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, nil
}
