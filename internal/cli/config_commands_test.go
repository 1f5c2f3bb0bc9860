package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tablerag/tablerag-client/internal/config"
)

// TestConfigSubcommands checks the command group wiring.
func TestConfigSubcommands(t *testing.T) {
	cmd := newConfigCmd()
	want := map[string]bool{"init": false, "show": false, "set": false, "test": false, "path": false}

	for _, sub := range cmd.Commands() {
		name := strings.Fields(sub.Use)[0]
		if _, ok := want[name]; !ok {
			t.Errorf("unexpected subcommand %q", name)
			continue
		}
		want[name] = true
		if sub.Short == "" {
			t.Errorf("%s: Short description is empty", name)
		}
		if sub.RunE == nil {
			t.Errorf("%s: RunE function is nil", name)
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

// TestConfigSetThenShow writes a key and reads it back through 'config show'.
func TestConfigSetThenShow(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.csv")

	if _, _, err := runCLI(t, "--config", cfgPath, "--env-file", filepath.Join(dir, ".env"),
		"config", "set", "poll_interval_ms", "2000"); err != nil {
		t.Fatalf("config set: %v", err)
	}

	cfg, err := config.LoadConfigCSV(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfigCSV: %v", err)
	}
	if cfg.PollIntervalMS != 2000 {
		t.Errorf("poll_interval_ms = %d, want 2000", cfg.PollIntervalMS)
	}

	stdout, _, err := runCLI(t, "--config", cfgPath, "--env-file", filepath.Join(dir, ".env"),
		"-o", "json", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(stdout), &values); err != nil {
		t.Fatalf("config show output is not JSON: %v\n%s", err, stdout)
	}
	if values["poll_interval_ms"] != "2000" {
		t.Errorf("shown poll_interval_ms = %q", values["poll_interval_ms"])
	}
}

// TestConfigSetRejects covers keys that cannot be stored.
func TestConfigSetRejects(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.csv")

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"unknown key", "api_key", "x", "unknown config key"},
		{"password", "proxy_password", "secret", "never stored"},
		{"bad number", "poll_interval_ms", "fast", "must be an integer"},
		{"below minimum", "poll_interval_ms", "1", "poll_interval_ms must be at least"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, "--config", cfgPath, "config", "set", tt.key, tt.value)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}

	if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
		t.Error("rejected values should not create the config file")
	}
}

// TestConfigInit answers the interactive prompts from stdin.
func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.csv")

	input := "http://tablerag.internal:8000\n\n/data/excel\n\nn\n"
	if _, _, err := runCLIWithInput(t, input, "--config", cfgPath, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}

	cfg, err := config.LoadConfigCSV(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfigCSV: %v", err)
	}
	if cfg.APIBaseURL != "http://tablerag.internal:8000" {
		t.Errorf("api_base_url = %q", cfg.APIBaseURL)
	}
	if cfg.DefaultExcelDir != "/data/excel" || cfg.DefaultDocDir != "" {
		t.Errorf("dirs = %q / %q", cfg.DefaultExcelDir, cfg.DefaultDocDir)
	}
	if cfg.ProxyMode != "no-proxy" {
		t.Errorf("proxy_mode = %q", cfg.ProxyMode)
	}

	// A second init without --force leaves the file alone
	stdout, _, err := runCLIWithInput(t, "http://other\n", "--config", cfgPath, "config", "init")
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !strings.Contains(stdout, "already exists") {
		t.Errorf("stdout = %q", stdout)
	}
}

// TestConfigPath prints the --config override.
func TestConfigPath(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "custom.csv")
	stdout, _, err := runCLI(t, "--config", cfgPath, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if !strings.HasPrefix(stdout, cfgPath+"\n") {
		t.Errorf("stdout = %q", stdout)
	}
}
