package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "devlink.json5", `{ gateway: { commands_per_minute: 10 } }`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 20 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnReload(func(c *Config) { got <- c })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{ gateway: { commands_per_minute: 99 } }`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Gateway.CommandsPerMinute != 99 {
			t.Fatalf("commands_per_minute = %d, want 99", c.Gateway.CommandsPerMinute)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcher_KeepsRunningOnBadConfig(t *testing.T) {
	path := writeFile(t, "devlink.json5", `{}`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 20 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnReload(func(c *Config) { got <- c })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	os.WriteFile(path, []byte(`{ gateway: { port: 70000 } }`), 0600)
	select {
	case <-got:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}

	os.WriteFile(path, []byte(`{ gateway: { port: 9001 } }`), 0600)
	select {
	case c := <-got:
		if c.Gateway.Port != 9001 {
			t.Fatalf("port = %d", c.Gateway.Port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after fixing config")
	}
}
