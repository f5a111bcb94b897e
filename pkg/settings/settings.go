// Package settings loads the newtnet daemon configuration.
package settings

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtnet/pkg/util"
)

// DefaultPath is read when --config is not given.
const DefaultPath = "/etc/newtnet/newtnet.yaml"

// Settings is the daemon configuration file.
type Settings struct {
	Log      LogSettings    `yaml:"log"`
	Store    StoreSettings  `yaml:"store"`
	Lock     LockSettings   `yaml:"lock"`
	Daemon   DaemonSettings `yaml:"daemon"`
	Switches SwitchSettings `yaml:"switches"`
	Audit    AuditSettings  `yaml:"audit"`
}

type LogSettings struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // text or json
}

type StoreSettings struct {
	Driver        string `yaml:"driver"` // memory or postgres
	DSN           string `yaml:"dsn"`
	MigrationsDir string `yaml:"migrations_dir"`
}

type LockSettings struct {
	Driver        string        `yaml:"driver"` // local, redis or postgres
	RedisAddr     string        `yaml:"redis_addr"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPassword string        `yaml:"redis_password"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
}

type DaemonSettings struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MetricsAddr     string        `yaml:"metrics_addr"` // empty disables the endpoint
	CollectInterval time.Duration `yaml:"collect_interval"`
}

type SwitchSettings struct {
	// Save maps a driver name to whether the running configuration is saved
	// on disconnect. Drivers not listed save.
	Save map[string]bool `yaml:"save"`

	ConsoleTimeout time.Duration `yaml:"console_timeout"`
	RESTTimeout    time.Duration `yaml:"rest_timeout"` // per request to REST managed switches
	SSHPort        int           `yaml:"ssh_port"`
	OVSCommand     string        `yaml:"ovs_command"`
	OVSSudo        bool          `yaml:"ovs_sudo"`
}

type AuditSettings struct {
	Path       string `yaml:"path"` // empty disables the audit trail
	MaxSize    int64  `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Settings {
	return &Settings{
		Log:   LogSettings{Level: "info", Format: "text"},
		Store: StoreSettings{Driver: "postgres", MigrationsDir: "/usr/share/newtnet/migrations"},
		Lock:  LockSettings{Driver: "local", RedisAddr: "localhost:6379", TTL: 30 * time.Second},
		Daemon: DaemonSettings{
			PollInterval:    2 * time.Second,
			CollectInterval: 15 * time.Second,
		},
		Switches: SwitchSettings{
			ConsoleTimeout: 30 * time.Second,
			RESTTimeout:    30 * time.Second,
			SSHPort:        22,
			OVSCommand:     "ovs-vsctl",
			OVSSudo:        true,
		},
		Audit: AuditSettings{MaxSize: 10 << 20, MaxBackups: 5},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating settings %s: %w", path, err)
	}
	return s, nil
}

// Validate reports every problem at once.
func (s *Settings) Validate() error {
	v := &util.ValidationBuilder{}

	v.Add(oneOf(s.Log.Format, "text", "json"), "log.format must be text or json")
	if s.Log.Level != "" {
		v.Add(validLevel(s.Log.Level), fmt.Sprintf("log.level %q is not a log level", s.Log.Level))
	}

	v.Add(oneOf(s.Store.Driver, "memory", "postgres"), "store.driver must be memory or postgres")
	if s.Store.Driver == "postgres" {
		v.Add(s.Store.DSN != "", "store.dsn is required for the postgres store")
	}

	v.Add(oneOf(s.Lock.Driver, "local", "redis", "postgres"), "lock.driver must be local, redis or postgres")
	if s.Lock.Driver == "redis" {
		v.Add(s.Lock.RedisAddr != "", "lock.redis_addr is required for the redis lock")
		v.Add(s.Lock.TTL >= time.Second, "lock.ttl must be at least 1s")
	}
	if s.Lock.Driver == "postgres" {
		v.Add(s.Store.Driver == "postgres", "lock.driver postgres requires store.driver postgres")
	}

	v.Add(s.Daemon.PollInterval > 0, "daemon.poll_interval must be positive")
	v.Add(s.Switches.ConsoleTimeout > 0, "switches.console_timeout must be positive")
	v.Add(s.Switches.RESTTimeout > 0, "switches.rest_timeout must be positive")
	v.Add(s.Switches.SSHPort > 0 && s.Switches.SSHPort < 65536, "switches.ssh_port must be 1-65535")
	v.Add(s.Audit.MaxSize >= 0 && s.Audit.MaxBackups >= 0, "audit.max_size and audit.max_backups must not be negative")

	return v.Build()
}

// ShouldSave reports whether sessions of driver save the running configuration.
func (s *Settings) ShouldSave(driver string) bool {
	save, ok := s.Switches.Save[driver]
	return !ok || save
}

// Encode writes s as YAML.
func (s *Settings) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// SaveTo writes s to path, creating the directory.
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := s.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func oneOf(s string, values ...string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}

func validLevel(level string) bool {
	switch level {
	case "panic", "fatal", "error", "warn", "warning", "info", "debug", "trace":
		return true
	}
	return false
}
