package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Backend != def.Backend || cfg.SampleRate != def.SampleRate || cfg.StatusTimeout != def.StatusTimeout {
		t.Errorf("got %+v", cfg)
	}
	if strings.HasPrefix(cfg.DataDir, "~") {
		t.Errorf("data dir not expanded: %s", cfg.DataDir)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dataDir := t.TempDir()
	p := writeConfig(t, `
backend: midi
midi:
  out_port: Blofeld
  channel: 3
data_dir: `+dataDir+`
status_timeout: 5s
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendMIDI || cfg.MIDI.OutPort != "Blofeld" || cfg.MIDI.Channel != 3 {
		t.Errorf("midi settings = %+v", cfg)
	}
	if cfg.StatusTimeout != 5*time.Second {
		t.Errorf("status timeout = %v", cfg.StatusTimeout)
	}
	if cfg.DataDir != dataDir {
		t.Errorf("data dir = %s", cfg.DataDir)
	}
	if cfg.SampleRate != 48000 || cfg.HTTP.Addr != Default().HTTP.Addr {
		t.Errorf("unset values lost their defaults: %+v", cfg)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"malformed":   "backend: [render",
		"bad backend": "backend: portaudio",
		"bad channel": "midi:\n  channel: 17",
	}
	for name, body := range tests {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestChannelErrorNamesRange(t *testing.T) {
	cfg := Default()
	cfg.MIDI.Channel = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "range 1-16, got 0") {
		t.Errorf("err = %v", err)
	}
}

func TestOverride(t *testing.T) {
	cfg := Default()
	dir := t.TempDir()
	if err := cfg.Override(BackendSilent, dir); err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendSilent || cfg.DataDir != dir {
		t.Errorf("override = %+v", cfg)
	}
	if err := cfg.Override("", ""); err != nil || cfg.Backend != BackendSilent {
		t.Errorf("empty override changed settings: %+v, %v", cfg, err)
	}
	if err := cfg.Override("jack", ""); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestMarshalWritesDurationsAsText(t *testing.T) {
	b, err := Default().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "status_timeout: 3s") {
		t.Errorf("durations should be written as text:\n%s", b)
	}
}
