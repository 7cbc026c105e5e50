// Package config handles loading and validating IOC configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "IOC_"

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config is the top-level IOC configuration.
type Config struct {
	Listen          string               `yaml:"listen" env:"LISTEN"`
	DB              DBConfig             `yaml:"db" envPrefix:"DB_"`
	LogLevel        string               `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat       string               `yaml:"log_format" env:"LOG_FORMAT"`
	LogFile         string               `yaml:"log_file" env:"LOG_FILE"`
	LogMaxSizeMB    int                  `yaml:"log_max_size_mb" env:"LOG_MAX_SIZE_MB"`
	LogMaxBackups   int                  `yaml:"log_max_backups" env:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays   int                  `yaml:"log_max_age_days" env:"LOG_MAX_AGE_DAYS"`
	RefreshInterval Duration             `yaml:"refresh_interval" env:"REFRESH_INTERVAL"`
	WorkerPoolSize  int                  `yaml:"worker_pool_size" env:"WORKER_POOL_SIZE"`
	Site            SiteConfig           `yaml:"site" envPrefix:"SITE_"`
	WPM             WPMConfig            `yaml:"wpm" envPrefix:"WPM_"`
	SCM             SCMConfig            `yaml:"scm"`
	Rail            RailConfig           `yaml:"rail" envPrefix:"RAIL_"`
	Notifications   []NotificationConfig `yaml:"notifications"`
	Alerts          AlertsConfig         `yaml:"alerts"`
	Retention       RetentionConfig      `yaml:"retention"`
}

// DBConfig selects the SQL backend.
type DBConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // "sqlite" or "mysql"
	DSN    string `yaml:"dsn" env:"DSN"`
}

// SiteConfig holds the default document branding. Values stored in the
// settings table take precedence at render time.
type SiteConfig struct {
	Title        string `yaml:"title" env:"TITLE"`
	Organisation string `yaml:"organisation" env:"ORGANISATION"`
}

// WPMConfig controls the website probe.
type WPMConfig struct {
	ProbeEnabled  bool     `yaml:"probe_enabled" env:"PROBE_ENABLED"`
	Interval      Duration `yaml:"interval" env:"INTERVAL"`
	Timeout       Duration `yaml:"timeout" env:"TIMEOUT"`
	SlowThreshold Duration `yaml:"slow_threshold" env:"SLOW_THRESHOLD"`
}

// SCMConfig lists the servers whose file hashes are verified over SSH.
type SCMConfig struct {
	Servers []SSHServerConfig `yaml:"servers"`
}

// SSHServerConfig describes SSH access to a monitored server.
type SSHServerConfig struct {
	Name     string   `yaml:"name"` // hostname as stored in scm_servers
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	KeyPath  string   `yaml:"key_path"`
	Paths    []string `yaml:"paths"`
	Interval Duration `yaml:"interval"`
}

// RailConfig controls the rail control simulator.
type RailConfig struct {
	Enabled   bool     `yaml:"enabled" env:"ENABLED"`
	Tick      Duration `yaml:"tick" env:"TICK"`
	JWTSecret string   `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// NotificationConfig describes a notification target.
type NotificationConfig struct {
	Type    string            `yaml:"type"` // "ntfy" or "webhook"
	URL     string            `yaml:"url"`
	Topic   string            `yaml:"topic,omitempty"`   // ntfy only
	Method  string            `yaml:"method,omitempty"`  // webhook only
	Headers map[string]string `yaml:"headers,omitempty"` // webhook only
}

// AlertsConfig holds thresholds for each alert type.
type AlertsConfig struct {
	HypervisorCPUHigh *AlertHypervisorCPUHigh `yaml:"hypervisor_cpu_high,omitempty"`
	VMPoweredOff      *AlertVMPoweredOff      `yaml:"vm_powered_off,omitempty"`
	WebsiteDown       *AlertWebsiteDown       `yaml:"website_down,omitempty"`
	SSLExpiring       *AlertSSLExpiring       `yaml:"ssl_expiring,omitempty"`
	ServerDrift       *AlertServerDrift       `yaml:"server_drift,omitempty"`
	EmergencyStop     *AlertEmergencyStop     `yaml:"emergency_stop,omitempty"`
}

type AlertHypervisorCPUHigh struct {
	Threshold float64  `yaml:"threshold"`
	Duration  Duration `yaml:"duration"`
	Severity  string   `yaml:"severity"`
}

type AlertVMPoweredOff struct {
	GracePeriod Duration `yaml:"grace_period"`
	Severity    string   `yaml:"severity"`
}

type AlertWebsiteDown struct {
	Severity string `yaml:"severity"`
}

type AlertSSLExpiring struct {
	Within   Duration `yaml:"within"`
	Severity string   `yaml:"severity"`
}

type AlertServerDrift struct {
	Threshold int    `yaml:"threshold"`
	Severity  string `yaml:"severity"`
}

type AlertEmergencyStop struct {
	Severity string `yaml:"severity"`
}

// RetentionConfig controls how long rows are kept before pruning.
type RetentionConfig struct {
	ChecksDays int      `yaml:"checks_days"`
	AlertsDays int      `yaml:"alerts_days"`
	AuditDays  int      `yaml:"audit_days"`
	PruneEvery Duration `yaml:"prune_every"`
}

// Duration wraps time.Duration with YAML and env string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file and then applies IOC_* environment
// overrides. An empty path yields defaults plus environment. If a path is given
// and the file does not exist, ErrConfigFileNotFound is returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	applyEnvNotifications(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("db.driver must be one of: sqlite, mysql")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	for i, s := range c.SCM.Servers {
		if s.Host == "" {
			return fmt.Errorf("scm.servers[%d]: host is required", i)
		}
		if s.User == "" {
			return fmt.Errorf("scm.servers[%d]: user is required", i)
		}
		if s.KeyPath == "" {
			return fmt.Errorf("scm.servers[%d]: key_path is required", i)
		}
		if s.Name == "" {
			return fmt.Errorf("scm.servers[%d]: name is required", i)
		}
		if len(s.Paths) == 0 {
			return fmt.Errorf("scm.servers[%d]: at least one path is required", i)
		}
		if s.Interval.Duration <= 0 {
			return fmt.Errorf("scm.servers[%d]: interval must be > 0", i)
		}
	}
	for i, n := range c.Notifications {
		switch n.Type {
		case "ntfy":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for ntfy", i)
			}
			if n.Topic == "" {
				return fmt.Errorf("notifications[%d]: topic is required for ntfy", i)
			}
		case "webhook":
			if n.URL == "" {
				return fmt.Errorf("notifications[%d]: url is required for webhook", i)
			}
			if _, err := url.Parse(n.URL); err != nil {
				return fmt.Errorf("notifications[%d]: invalid url: %w", i, err)
			}
		default:
			return fmt.Errorf("notifications[%d]: unknown type %q (expected ntfy or webhook)", i, n.Type)
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}
	if c.RefreshInterval.Duration <= 0 {
		return fmt.Errorf("refresh_interval must be > 0")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1")
	}
	if c.WPM.ProbeEnabled {
		if c.WPM.Interval.Duration <= 0 || c.WPM.Timeout.Duration <= 0 {
			return fmt.Errorf("wpm: interval and timeout must be > 0")
		}
	}
	if c.Rail.Enabled && c.Rail.Tick.Duration <= 0 {
		return fmt.Errorf("rail.tick must be > 0")
	}

	if a := c.Alerts.HypervisorCPUHigh; a != nil {
		if a.Threshold <= 0 {
			return fmt.Errorf("alerts.hypervisor_cpu_high: threshold must be > 0")
		}
		if a.Duration.Duration <= 0 {
			return fmt.Errorf("alerts.hypervisor_cpu_high: duration must be > 0")
		}
	}
	if a := c.Alerts.VMPoweredOff; a != nil {
		if a.GracePeriod.Duration <= 0 {
			return fmt.Errorf("alerts.vm_powered_off: grace_period must be > 0")
		}
	}
	if a := c.Alerts.SSLExpiring; a != nil {
		if a.Within.Duration <= 0 {
			return fmt.Errorf("alerts.ssl_expiring: within must be > 0")
		}
	}
	if a := c.Alerts.ServerDrift; a != nil {
		if a.Threshold <= 0 {
			return fmt.Errorf("alerts.server_drift: threshold must be > 0")
		}
	}

	return nil
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Listen:          ":8080",
		DB:              DBConfig{Driver: "sqlite", DSN: "ioc.db"},
		LogLevel:        "info",
		LogFormat:       "text",
		LogMaxSizeMB:    50,
		LogMaxBackups:   3,
		LogMaxAgeDays:   28,
		RefreshInterval: Duration{30 * time.Second},
		WorkerPoolSize:  4,
		Site: SiteConfig{
			Title:        "Intelligent Operating Centre",
			Organisation: "IOC Solutions",
		},
		WPM: WPMConfig{
			Interval:      Duration{time.Minute},
			Timeout:       Duration{10 * time.Second},
			SlowThreshold: Duration{2 * time.Second},
		},
		Rail: RailConfig{
			Enabled: true,
			Tick:    Duration{2 * time.Second},
		},
		Retention: RetentionConfig{
			ChecksDays: 7,
			AlertsDays: 30,
			AuditDays:  90,
			PruneEvery: Duration{time.Hour},
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables are replaced
// with an empty string, which will then fail validation with a clear error.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1]) // strip ${ and }
		return []byte(os.Getenv(key))
	})
}

// Single ntfy target from env vars, only if no YAML notifications are configured.
func applyEnvNotifications(cfg *Config) {
	if len(cfg.Notifications) > 0 {
		return
	}
	ntfyURL := os.Getenv(EnvPrefix + "NTFY_URL")
	if ntfyURL == "" {
		return
	}
	topic := os.Getenv(EnvPrefix + "NTFY_TOPIC")
	if topic == "" {
		topic = "ioc-alerts"
	}
	cfg.Notifications = append(cfg.Notifications, NotificationConfig{
		Type:  "ntfy",
		URL:   ntfyURL,
		Topic: topic,
	})
}
