package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DemoAPIKey switches the relay to the offline demo provider.
const DemoAPIKey = "DEMO_MODE"

const (
	defaultMLURL          = "https://us-south.ml.cloud.ibm.com/ml/v4/deployments"
	defaultIAMURL         = "https://iam.cloud.ibm.com/identity/token"
	defaultVersion        = "2021-05-01"
	defaultPort           = 3002
	defaultServiceName    = "Watson ML Research Agent"
	defaultRequestTimeout = 30 * time.Second
	defaultMaxWorkers     = 10
	defaultMaxAuthRetries = 1
	defaultLogLevel       = "info"
	defaultDemoDelay      = time.Second
)

// Config is the relay configuration. It is built once by Load and treated as
// read-only afterwards.
type Config struct {
	APIKey       string `yaml:"api_key"`
	DeploymentID string `yaml:"deployment_id"`
	MLURL        string `yaml:"watson_ml_url"`
	IAMURL       string `yaml:"iam_url"`
	Version      string `yaml:"version"`
	Port         int    `yaml:"port"`

	ServiceName          string        `yaml:"service_name"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	MaxWorkers           int           `yaml:"max_workers"`
	MaxAuthRetries       int           `yaml:"max_auth_retries"`
	LogLevel             string        `yaml:"log_level"`
	TokenRefreshSchedule string        `yaml:"token_refresh_schedule"`
	DemoDelay            time.Duration `yaml:"demo_delay"`
}

// LoadError reports a configuration that could not be read, parsed or validated.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load config: %v", e.Cause)
	}
	return fmt.Sprintf("load config %q: %v", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Defaults returns the non-secret defaults. API key and deployment id are
// intentionally left empty.
func Defaults() Config {
	return Config{
		MLURL:          defaultMLURL,
		IAMURL:         defaultIAMURL,
		Version:        defaultVersion,
		Port:           defaultPort,
		ServiceName:    defaultServiceName,
		RequestTimeout: defaultRequestTimeout,
		MaxWorkers:     defaultMaxWorkers,
		MaxAuthRetries: defaultMaxAuthRetries,
		LogLevel:       defaultLogLevel,
		DemoDelay:      defaultDemoDelay,
	}
}

// Load reads configuration from path, overlays process environment variables
// and validates the result. Files ending in .yaml or .yml are parsed as YAML,
// anything else as KEY=VALUE lines. A missing file is not an error as long as
// the environment provides the required settings.
func Load(path string) (Config, error) {
	cfg := Defaults()

	absPath := ""
	if path != "" {
		var err error
		absPath, err = filepath.Abs(path)
		if err != nil {
			return Config{}, &LoadError{Path: path, Cause: fmt.Errorf("resolve config path: %w", err)}
		}

		if err := loadFile(absPath, &cfg); err != nil {
			return Config{}, &LoadError{Path: absPath, Cause: err}
		}
	}

	if err := applyValues(&cfg, lookupEnv); err != nil {
		return Config{}, &LoadError{Path: absPath, Cause: fmt.Errorf("environment: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, &LoadError{Path: absPath, Cause: err}
	}
	return cfg, nil
}

func loadFile(absPath string, cfg *Config) error {
	if _, err := os.Stat(absPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
		return nil
	default:
		values, err := godotenv.Read(absPath)
		if err != nil {
			return fmt.Errorf("parse env file: %w", err)
		}
		return applyValues(cfg, func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok && strings.TrimSpace(v) != ""
		})
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("API_KEY must be provided")
	}
	if c.IsDemo() {
		return c.validateServer()
	}

	if strings.TrimSpace(c.DeploymentID) == "" {
		return errors.New("DEPLOYMENT_ID must be provided")
	}
	if err := validateURL("WATSON_ML_URL", c.MLURL); err != nil {
		return err
	}
	if err := validateURL("IAM_URL", c.IAMURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("VERSION must not be empty")
	}
	return c.validateServer()
}

func (c Config) validateServer() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port, got %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.MaxWorkers)
	}
	if c.MaxAuthRetries < 0 {
		return fmt.Errorf("MAX_AUTH_RETRIES must not be negative, got %d", c.MaxAuthRetries)
	}
	if c.DemoDelay < 0 {
		return fmt.Errorf("DEMO_DELAY must not be negative, got %s", c.DemoDelay)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q must be one of debug, info, warn or error", c.LogLevel)
	}
	return nil
}

// IsDemo reports whether the relay should answer from canned responses.
func (c Config) IsDemo() bool {
	return c.APIKey == DemoAPIKey
}

// InferenceURL is the deployment scoring endpoint.
func (c Config) InferenceURL() string {
	return fmt.Sprintf("%s/%s/ai_service_stream?version=%s",
		strings.TrimRight(c.MLURL, "/"), url.PathEscape(c.DeploymentID), url.QueryEscape(c.Version))
}

func validateURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must be provided", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, raw)
	}
	return nil
}
