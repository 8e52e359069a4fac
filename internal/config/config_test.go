package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wampd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTemp(t, "app_name: test\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Protocol != "rawsocket" {
		t.Fatalf("expected default rawsocket listener, got %#v", cfg.Listeners)
	}
	if len(cfg.Realms) != 1 || cfg.Realms[0].Name != "realm1" {
		t.Fatalf("expected default realm1, got %#v", cfg.Realms)
	}
	if cfg.AwaitGoodbyeSeconds != 10 {
		t.Fatalf("expected default await_goodbye_seconds=10, got %d", cfg.AwaitGoodbyeSeconds)
	}
}

func TestLoadExplicitListeners(t *testing.T) {
	path := writeTemp(t, `
listeners:
  - protocol: websocket
    network: tcp
    address: ":8081"
    path: /ws
realms:
  - name: realm2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listeners[0].Path != "/ws" {
		t.Fatalf("expected path /ws, got %q", cfg.Listeners[0].Path)
	}
	if got := cfg.RealmNames(); len(got) != 1 || got[0] != "realm2" {
		t.Fatalf("unexpected realm names: %v", got)
	}
}

func TestLoadRejectsUnknownProtocol(t *testing.T) {
	path := writeTemp(t, `
listeners:
  - protocol: bogus
    address: ":1"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown listener protocol")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
