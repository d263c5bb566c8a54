package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateEnabledChannelNeedsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels.Discord.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted enabled discord channel without token")
	}
	cfg.Channels.Discord.Token = "tok"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg = DefaultConfig()
	cfg.Channels.Email.Enabled = true
	cfg.Channels.Email.SMTPHost = "smtp.example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted email channel without from address")
	}
	cfg.Channels.Email.From = "bot@example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidateRejectsBadDelivery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Delivery.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted zero max_attempts")
	}
}

func TestValidateRejectsEmptyCommandName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Commands.Table = append(cfg.Commands.Table, CommandEntry{Name: "  "})
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted command entry with empty name")
	}
}

func TestDefaultCommandTable(t *testing.T) {
	table := DefaultCommandTable()
	byName := make(map[string]CommandEntry, len(table))
	for _, e := range table {
		if e.Name == "" || e.Action == "" {
			t.Errorf("entry %+v missing name or action", e)
		}
		byName[e.Name] = e
	}
	if _, ok := byName["help"]; !ok {
		t.Error("default table is missing help")
	}
	if e := byName["checkin"]; !e.Flow {
		t.Error("checkin entry should be flow-routed")
	}
	if _, ok := byName["cancel"]; ok {
		t.Error("cancel is reserved and must not appear in the table")
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "log": {"level": "debug"},
  "channels": {"telegram": {"enabled": true, "token": "tok"}}
}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tok" {
		t.Errorf("telegram config not applied: %+v", cfg.Channels.Telegram)
	}
	// Unset sections keep defaults.
	if cfg.Delivery.MaxAttempts != 4 {
		t.Errorf("Delivery.MaxAttempts = %d, want default 4", cfg.Delivery.MaxAttempts)
	}
	if len(cfg.Commands.Table) == 0 {
		t.Error("command table should fall back to defaults")
	}
}

func TestLoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus.Type != "local" {
		t.Errorf("Bus.Type = %q, want local", cfg.Bus.Type)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if !strings.Contains(string(data), `"delivery"`) {
		t.Error("written config is missing delivery section")
	}
}

func TestLoadCommandTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	content := `
- name: standup
  action: start standup
  description: Begin a standup flow
  flow: true
- name: ping
  action: ping
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadCommandTable(path)
	if err != nil {
		t.Fatalf("LoadCommandTable() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "standup" || !entries[0].Flow {
		t.Errorf("first entry = %+v", entries[0])
	}
}

func TestLoadCommandTableRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCommandTable(path); err == nil {
		t.Error("LoadCommandTable() accepted malformed YAML")
	}
}
