// Package config loads TaskMirror settings.
//
// Two files live under the config directory (~/.taskmirror by default):
//
//	config.yaml   general settings, loaded with viper
//	accounts.toml per-account OAuth credentials, kept separate so the
//	              settings file can be shared or checked in without
//	              leaking secrets
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/taskmirror/taskmirror/internal/remote"
)

// Config represents the full TaskMirror configuration.
type Config struct {
	// DBPath is the SQLite task database location.
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// DefaultAccount is used when a command doesn't name one.
	DefaultAccount string `yaml:"default_account" mapstructure:"default_account"`

	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Daemon    DaemonConfig    `yaml:"daemon" mapstructure:"daemon"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	// AutoSave propagates each local mutation immediately.
	AutoSave bool `yaml:"auto_save" mapstructure:"auto_save"`

	PerTaskTimeout     time.Duration `yaml:"per_task_timeout" mapstructure:"per_task_timeout"`
	PropagationTimeout time.Duration `yaml:"propagation_timeout" mapstructure:"propagation_timeout"`
}

// DaemonConfig configures the background sync daemon.
type DaemonConfig struct {
	SyncInterval     time.Duration `yaml:"sync_interval" mapstructure:"sync_interval"`
	DebounceInterval time.Duration `yaml:"debounce_interval" mapstructure:"debounce_interval"`
	LogPath          string        `yaml:"log_path" mapstructure:"log_path"`
}

// DashboardConfig configures the WebSocket dashboard server.
type DashboardConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ReportConfig configures report generation and delivery.
type ReportConfig struct {
	// SMTPAddr is the mail relay in host:port form. Empty disables email.
	SMTPAddr string `yaml:"smtp_addr" mapstructure:"smtp_addr"`
	From     string `yaml:"from" mapstructure:"from"`
	To       string `yaml:"to" mapstructure:"to"`
}

// Account binds a remote account name to its credentials and task list.
type Account struct {
	Credentials remote.Credentials `toml:"credentials"`

	// Tasklist is the remote task list identifier ("@default" works for
	// the primary list).
	Tasklist string `toml:"tasklist"`
}

// Accounts is the parsed accounts.toml.
type Accounts struct {
	Accounts map[string]Account `toml:"accounts"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath: filepath.Join(Dir(), "tasks.db"),
		Sync: SyncConfig{
			AutoSave:           true,
			PerTaskTimeout:     30 * time.Second,
			PropagationTimeout: 15 * time.Second,
		},
		Daemon: DaemonConfig{
			SyncInterval:     5 * time.Minute,
			DebounceInterval: 2 * time.Second,
			LogPath:          filepath.Join(Dir(), "daemon.log"),
		},
		Dashboard: DashboardConfig{
			Port: 8484,
		},
	}
}

// Dir returns the config directory, honoring TASKMIRROR_DIR for tests
// and unusual setups.
func Dir() string {
	if dir := os.Getenv("TASKMIRROR_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskmirror"
	}
	return filepath.Join(home, ".taskmirror")
}

// Path returns the settings file path.
func Path() string { return filepath.Join(Dir(), "config.yaml") }

// AccountsPath returns the credentials file path.
func AccountsPath() string { return filepath.Join(Dir(), "accounts.toml") }

// Load reads config.yaml over the defaults. A missing file returns the
// defaults without error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAccounts reads accounts.toml. A missing file yields an empty set.
func LoadAccounts() (*Accounts, error) {
	accts := &Accounts{Accounts: make(map[string]Account)}

	path := AccountsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return accts, nil
	}

	if _, err := toml.DecodeFile(path, accts); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if accts.Accounts == nil {
		accts.Accounts = make(map[string]Account)
	}
	return accts, nil
}

// SaveAccounts writes accounts.toml with owner-only permissions, since
// it holds OAuth secrets.
func SaveAccounts(accts *Accounts) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path := AccountsPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(accts); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Names returns the configured account names in sorted order.
func (a *Accounts) Names() []string {
	names := make([]string, 0, len(a.Accounts))
	for name := range a.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
