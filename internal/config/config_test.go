package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("TASKMIRROR_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Sync.AutoSave {
		t.Error("auto-save should default on")
	}
	if cfg.Daemon.SyncInterval != 5*time.Minute {
		t.Errorf("sync interval = %v, want 5m", cfg.Daemon.SyncInterval)
	}
	if cfg.Dashboard.Port != 8484 {
		t.Errorf("dashboard port = %d, want 8484", cfg.Dashboard.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKMIRROR_DIR", dir)

	yaml := `
db_path: /tmp/other.db
default_account: work
sync:
  auto_save: false
daemon:
  sync_interval: 90s
dashboard:
  port: 9000
report:
  smtp_addr: localhost:2525
  from: me@example.com
  to: me@example.com
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
	if cfg.DefaultAccount != "work" {
		t.Errorf("default_account = %q", cfg.DefaultAccount)
	}
	if cfg.Sync.AutoSave {
		t.Error("auto_save should be off")
	}
	if cfg.Daemon.SyncInterval != 90*time.Second {
		t.Errorf("sync_interval = %v", cfg.Daemon.SyncInterval)
	}
	if cfg.Dashboard.Port != 9000 {
		t.Errorf("port = %d", cfg.Dashboard.Port)
	}
	if cfg.Report.SMTPAddr != "localhost:2525" {
		t.Errorf("smtp_addr = %q", cfg.Report.SMTPAddr)
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	t.Setenv("TASKMIRROR_DIR", t.TempDir())

	accts, err := LoadAccounts()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(accts.Accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(accts.Accounts))
	}

	accts.Accounts["work"] = Account{Tasklist: "@default"}
	accts.Accounts["home"] = Account{Tasklist: "MTIzNDU"}
	acct := accts.Accounts["work"]
	acct.Credentials.ClientID = "id"
	acct.Credentials.ClientSecret = "secret"
	acct.Credentials.RefreshToken = "token"
	accts.Accounts["work"] = acct

	if err := SaveAccounts(accts); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Secrets demand owner-only permissions.
	info, err := os.Stat(AccountsPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	got, err := LoadAccounts()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(got.Accounts))
	}
	if got.Accounts["work"].Credentials.RefreshToken != "token" {
		t.Error("credentials did not survive the round trip")
	}
	if got.Accounts["home"].Tasklist != "MTIzNDU" {
		t.Error("tasklist did not survive the round trip")
	}

	names := got.Names()
	if len(names) != 2 || names[0] != "home" || names[1] != "work" {
		t.Errorf("names = %v, want sorted [home work]", names)
	}
}
