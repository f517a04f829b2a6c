// Package config loads the parley.yaml file that wires a deployment together.
//
// Values are resolved in three steps: struct-tag defaults, the YAML document
// (with ${VAR} references expanded from the environment), then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/adapters/process"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "parley.yaml"

type Config struct {
	Flows     Flows     `yaml:"flows"`
	Sessions  Sessions  `yaml:"sessions"`
	Evaluator Evaluator `yaml:"evaluator"`
	Queue     Queue     `yaml:"queue"`
	Janitor   Janitor   `yaml:"janitor"`
	Actions   Actions   `yaml:"actions"`
	HTTP      HTTP      `yaml:"http"`
	Webhook   Webhook   `yaml:"webhook"`
	Tracing   Tracing   `yaml:"tracing"`
	Log       Log       `yaml:"log"`
}

type Flows struct {
	Dir         string `yaml:"dir" default:"flows" validate:"required"`
	Driver      string `yaml:"driver" default:"file" validate:"oneof=file loam memory"`
	DefaultFlow string `yaml:"defaultFlow" default:"main.flow.json" validate:"required"`
	Watch       bool   `yaml:"watch"`
}

type Sessions struct {
	Driver   string   `yaml:"driver" default:"memory" validate:"oneof=memory redis postgres"`
	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`

	// EncryptionKey seals stored records with AES-256-GCM when set.
	// Base64 of 32 bytes. FallbackKeys still decrypt older records.
	EncryptionKey string   `yaml:"encryptionKey" validate:"omitempty,base64"`
	FallbackKeys  []string `yaml:"fallbackKeys" validate:"dive,base64"`
}

type Redis struct {
	Addr     string        `yaml:"addr" default:"localhost:6379" validate:"hostname_port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"parley:"`
	TTL      time.Duration `yaml:"ttl" default:"24h" validate:"gte=0"`
	LockTTL  time.Duration `yaml:"lockTtl" default:"30s" validate:"gt=0"`
}

type Postgres struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table" default:"dialog_sessions" validate:"required"`
}

type Evaluator struct {
	Timeout time.Duration `yaml:"timeout" default:"5s" validate:"gt=0"`
}

type Queue struct {
	MaxRetries int           `yaml:"maxRetries" default:"2" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retryDelay" default:"100ms" validate:"gte=0"`
}

type Janitor struct {
	Enabled    bool          `yaml:"enabled" default:"true"`
	Interval   time.Duration `yaml:"interval" default:"10s" validate:"gt=0"`
	Inactivity time.Duration `yaml:"inactivity" default:"2m" validate:"gt=0"`
}

type HTTP struct {
	Addr         string `yaml:"addr" default:":8080" validate:"required"`
	MaxInputSize int    `yaml:"maxInputSize" default:"4096" validate:"gt=0"`
}

// Actions declares local commands exposed as flow actions. File is read in
// addition to the inline list; a missing file is not an error.
type Actions struct {
	File    string           `yaml:"file" default:"actions.yaml"`
	WorkDir string           `yaml:"workDir"`
	Process []process.Config `yaml:"process" validate:"dive"`
}

type Webhook struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" default:"5s" validate:"gt=0"`
	Retries int           `yaml:"retries" default:"2" validate:"gte=0"`
}

type Tracing struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName" default:"parley"`
}

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json console"`
}

var validate = validator.New()

// Default returns a Config holding only the default values.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// Load reads the file at path. An empty path falls back to DefaultFile when it
// exists and to the defaults otherwise.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg, err := Default()
			if err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field rules and the driver-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sessions.Driver == "postgres" && c.Sessions.Postgres.DSN == "" {
		return errors.New("invalid config: sessions.postgres.dsn is required for the postgres driver")
	}
	return nil
}
