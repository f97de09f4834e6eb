package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(key string) (string, bool)

// lookupEnv treats empty variables as unset so an exported-but-blank key does
// not wipe a value from the file.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func applyValues(cfg *Config, lookup lookupFunc) error {
	texts := map[string]*string{
		"API_KEY":                &cfg.APIKey,
		"DEPLOYMENT_ID":          &cfg.DeploymentID,
		"WATSON_ML_URL":          &cfg.MLURL,
		"IAM_URL":                &cfg.IAMURL,
		"VERSION":                &cfg.Version,
		"SERVICE_NAME":           &cfg.ServiceName,
		"LOG_LEVEL":              &cfg.LogLevel,
		"TOKEN_REFRESH_SCHEDULE": &cfg.TokenRefreshSchedule,
	}
	for key, dst := range texts {
		if v, ok := lookup(key); ok {
			*dst = trimValue(v)
		}
	}

	ints := map[string]*int{
		"PORT":             &cfg.Port,
		"MAX_WORKERS":      &cfg.MaxWorkers,
		"MAX_AUTH_RETRIES": &cfg.MaxAuthRetries,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(trimValue(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
		"DEMO_DELAY":      &cfg.DemoDelay,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := parseDuration(trimValue(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	return nil
}

// parseDuration accepts Go duration strings and bare integers as seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func trimValue(v string) string {
	return strings.TrimSpace(v)
}
