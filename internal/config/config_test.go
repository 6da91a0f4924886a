package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	p := writeFile(t, `
server:
  url: wss://game.example/v1/ws
  name: courier
agent:
  strategy: plan
  changing_risk: 0.5
  penalty_window: 3s
solver:
  url: http://localhost:9000/solve
storage:
  index: false
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.URL != "wss://game.example/v1/ws" || c.Server.Name != "courier" {
		t.Fatalf("server: %+v", c.Server)
	}
	if c.Agent.Strategy != "plan" || c.Agent.ChangingRisk != 0.5 || c.Agent.PenaltyWindow != 3*time.Second {
		t.Fatalf("agent: %+v", c.Agent)
	}
	// Untouched keys keep their defaults.
	d := Defaults()
	if c.Agent.MaxMoveRetries != d.Agent.MaxMoveRetries || c.Server.AckTimeout != d.Server.AckTimeout || !c.Storage.Journal {
		t.Fatalf("defaults lost: %+v", c)
	}
	if c.Storage.Index {
		t.Fatalf("storage.index should be off")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"agent.strategy":      "agent:\n  strategy: greedy\n",
		"agent.changing_risk": "agent:\n  changing_risk: 1.5\n",
		"server.url":          "server:\n  url: http://x\n",
		"agent.cache_entries": "agent:\n  cache_entries: 0\n",
	}
	for field, body := range cases {
		_, err := Load(writeFile(t, body))
		if err == nil || !strings.Contains(err.Error(), field) {
			t.Fatalf("%s: got %v", field, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
