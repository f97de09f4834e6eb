package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"research-relay/internal/config"
	"research-relay/internal/provider/demo"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_KEY", "DEPLOYMENT_ID", "WATSON_ML_URL", "IAM_URL", "VERSION", "PORT",
		"SERVICE_NAME", "REQUEST_TIMEOUT", "MAX_WORKERS", "MAX_AUTH_RETRIES",
		"LOG_LEVEL", "TOKEN_REFRESH_SCHEDULE", "DEMO_DELAY",
	} {
		t.Setenv(key, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "research-relay "+Version+"\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Go Version: ") {
		t.Errorf("output lacks go version: %q", out)
	}
}

func TestTokenCommandDemoMode(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_KEY", config.DemoAPIKey)
	missing := filepath.Join(t.TempDir(), "config.env")

	out, err := run(t, "token", "--config", missing, "--show")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	if strings.TrimSpace(out) != demo.Token {
		t.Errorf("output = %q, want %q", out, demo.Token)
	}
}

func TestServeRejectsBadConfig(t *testing.T) {
	clearConfigEnv(t)
	missing := filepath.Join(t.TempDir(), "config.env")

	_, err := run(t, "serve", "--config", missing)

	var loadErr *config.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v, want *config.LoadError", err)
	}
}

func TestServeRejectsBadPort(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("API_KEY", config.DemoAPIKey)
	missing := filepath.Join(t.TempDir(), "config.env")

	if _, err := run(t, "serve", "--config", missing, "--port", "70000"); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, "bogus"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

type recordingRotator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingRotator) SetAPIKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func TestRotateKey(t *testing.T) {
	current := config.Defaults()
	current.APIKey = "old"
	current.DeploymentID = "dep-1"

	rot := &recordingRotator{}
	apply := rotateKey(rot, current)

	same := current
	apply(same)

	next := current
	next.APIKey = "new"
	apply(next)

	demoCfg := current
	demoCfg.APIKey = config.DemoAPIKey
	apply(demoCfg)

	if len(rot.keys) != 1 || rot.keys[0] != "new" {
		t.Errorf("rotated keys = %v, want [new]", rot.keys)
	}
}
