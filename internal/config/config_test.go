package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewManager(path)
}

const yamlConfig = `
logging:
  level: debug
  console: true
scheduler:
  spec: "*/5 * * * *"
  timezone: Asia/Tokyo
pipeline:
  workers: 4
store:
  driver: file
  path: /var/lib/stocknotify/state.db
http:
  enabled: true
  addr: 127.0.0.1:9090
  read_timeout: 3s
sinks:
  webhook:
    retry_max: 1
    timeout: 5s
`

const jsonConfig = `{
  "logging": {"level": "debug", "console": true},
  "scheduler": {"spec": "*/5 * * * *", "timezone": "Asia/Tokyo"},
  "pipeline": {"workers": 4},
  "store": {"driver": "file", "path": "/var/lib/stocknotify/state.db"},
  "http": {"enabled": true, "addr": "127.0.0.1:9090", "read_timeout": "3s"},
  "sinks": {"webhook": {"retry_max": 1, "timeout": "5s"}}
}`

func TestParseYAMLAndJSONParity(t *testing.T) {
	t.Parallel()

	fromYAML, err := writeConfig(t, "config.yaml", yamlConfig).Parse()
	if err != nil {
		t.Fatalf("yaml parse: %v", err)
	}
	fromJSON, err := writeConfig(t, "config.json", jsonConfig).Parse()
	if err != nil {
		t.Fatalf("json parse: %v", err)
	}

	if *fromYAML != *fromJSON {
		t.Fatalf("yaml and json disagree:\n%+v\n%+v", fromYAML, fromJSON)
	}
	if fromYAML.Scheduler.Spec != "*/5 * * * *" {
		t.Fatalf("spec = %q", fromYAML.Scheduler.Spec)
	}
	if fromYAML.Pipeline.Workers != 4 {
		t.Fatalf("workers = %d", fromYAML.Pipeline.Workers)
	}
	if fromYAML.Store.Driver != "file" {
		t.Fatalf("driver = %q", fromYAML.Store.Driver)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
schedler:
  spec: "@hourly"
store:
  driver: memory
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("misspelled section must be rejected, not silently ignored")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.json", `{"store":{"driver":"memory"}}{"extra":true}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("concatenated JSON documents must be rejected")
	}
}

func TestLoadCommitsAndGetReturns(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", yamlConfig)
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()

	m := writeConfig(t, "config.yaml", yamlConfig)
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber received a different config")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the update")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("unsubscribed channel must be closed")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"5s", 5 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): want error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	got, err := ParseDurationOrDefault("f", "", 7*time.Second)
	if err != nil || got != 7*time.Second {
		t.Fatalf("empty = %v, %v", got, err)
	}
	got, err = ParseDurationOrDefault("f", "2s", 7*time.Second)
	if err != nil || got != 2*time.Second {
		t.Fatalf("explicit = %v, %v", got, err)
	}
	if _, err = ParseDurationOrDefault("f", "bad", 7*time.Second); err == nil {
		t.Fatal("invalid value must not fall back to the default")
	}
}
