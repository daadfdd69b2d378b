package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv(rootDirEnv, root)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.EndpointURL != "ws://localhost:4000/ws" {
		t.Fatalf("EndpointURL=%q, want default", cfg.EndpointURL)
	}
	if cfg.HTTPAddr != "127.0.0.1:8102" {
		t.Fatalf("HTTPAddr=%q, want default", cfg.HTTPAddr)
	}
	if cfg.Audio.SampleRate != 24000 || cfg.Audio.Channels != 1 {
		t.Fatalf("Audio=%+v, want 24000/1", cfg.Audio)
	}
	if cfg.Recordings.Enabled {
		t.Fatal("Recordings.Enabled=true, want false")
	}
	if want := filepath.Join(root, "data", "recordings"); cfg.Recordings.Dir != want {
		t.Fatalf("Recordings.Dir=%q, want %q", cfg.Recordings.Dir, want)
	}
	if cfg.Log.File.Name != "phoneai-client.log" {
		t.Fatalf("Log.File.Name=%q, want phoneai-client.log", cfg.Log.File.Name)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := "endpoint_url: wss://agent.example.com/ws\n" +
		"headers:\n  authorization: Bearer token\n" +
		"audio:\n  sample_rate: 16000\n" +
		"recordings:\n  enabled: true\n  dir: /var/rec\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.RootDir != dir {
		t.Fatalf("RootDir=%q, want %q", cfg.RootDir, dir)
	}
	if cfg.EndpointURL != "wss://agent.example.com/ws" {
		t.Fatalf("EndpointURL=%q", cfg.EndpointURL)
	}
	if cfg.Headers["authorization"] != "Bearer token" {
		t.Fatalf("Headers=%v, want authorization", cfg.Headers)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("Audio=%+v, want 16000/1", cfg.Audio)
	}
	if !cfg.Recordings.Enabled || cfg.Recordings.Dir != "/var/rec" {
		t.Fatalf("Recordings=%+v, want enabled at /var/rec", cfg.Recordings)
	}
}

func TestLoadEndpointFromEnv(t *testing.T) {
	t.Setenv(rootDirEnv, t.TempDir())

	t.Setenv(legacyEndpointEnv, "ws://legacy.local/ws")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.EndpointURL != "ws://legacy.local/ws" {
		t.Fatalf("EndpointURL=%q, want legacy env value", cfg.EndpointURL)
	}

	t.Setenv("PHONEAI_ENDPOINT_URL", "ws://primary.local/ws")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.EndpointURL != "ws://primary.local/ws" {
		t.Fatalf("EndpointURL=%q, want PHONEAI_ENDPOINT_URL value", cfg.EndpointURL)
	}
}

func TestLoadRejectsInvalidEndpoint(t *testing.T) {
	t.Setenv(rootDirEnv, t.TempDir())
	t.Setenv("PHONEAI_ENDPOINT_URL", "http://agent.local/ws")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Fatalf("Load error=%v, want scheme error", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{EndpointURL: "ws://agent.local/ws", Audio: AudioConfig{SampleRate: 24000, Channels: 1}}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no host", mutate: func(c *Config) { c.EndpointURL = "ws:///ws" }},
		{name: "bad scheme", mutate: func(c *Config) { c.EndpointURL = "ftp://agent.local" }},
		{name: "zero rate", mutate: func(c *Config) { c.Audio.SampleRate = 0 }},
		{name: "zero channels", mutate: func(c *Config) { c.Audio.Channels = 0 }},
	}
	for _, tt := range tests {
		cfg := base
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate succeeded, want error", tt.name)
		}
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Config{
		RootDir:     "/srv",
		EndpointURL: "ws://agent.local/ws",
		HTTPAddr:    ":8102",
		Audio:       AudioConfig{SampleRate: 24000, Channels: 1},
	}
	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML error: %v", err)
	}
	if strings.Contains(string(data), "/srv") {
		t.Fatalf("YAML output leaks root dir:\n%s", data)
	}
	var decoded Config
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded.EndpointURL != cfg.EndpointURL || decoded.Audio != cfg.Audio {
		t.Fatalf("decoded=%+v, want %+v", decoded, cfg)
	}
}
