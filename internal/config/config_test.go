package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "ioc.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"IOC_LISTEN", "IOC_DB_DRIVER", "IOC_DB_DSN", "IOC_LOG_LEVEL",
		"IOC_LOG_FORMAT", "IOC_LOG_FILE", "IOC_REFRESH_INTERVAL",
		"IOC_WORKER_POOL_SIZE", "IOC_SITE_TITLE", "IOC_SITE_ORGANISATION",
		"IOC_WPM_PROBE_ENABLED", "IOC_WPM_TIMEOUT", "IOC_RAIL_ENABLED",
		"IOC_RAIL_TICK", "IOC_RAIL_JWT_SECRET", "IOC_NTFY_URL", "IOC_NTFY_TOPIC",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

const fullYAML = `
listen: ":9090"
db:
  driver: mysql
  dsn: "ioc:secret@tcp(db:3306)/ioc"
log_level: "debug"
log_format: "json"
log_file: "/var/log/ioc/ioc.log"
log_max_size_mb: 10
refresh_interval: "15s"
worker_pool_size: 8

site:
  title: "Northern Rail IOC"
  organisation: "Northern Rail"

wpm:
  probe_enabled: true
  interval: "2m"
  timeout: "5s"
  slow_threshold: "1500ms"

scm:
  servers:
    - name: web-prod-01
      host: "10.0.1.10"
      port: 2222
      user: "audit"
      key_path: "/config/ssh/id_ed25519"
      paths: ["/etc/passwd", "/etc/ssh/sshd_config"]
      interval: "10m"

rail:
  enabled: true
  tick: "1s"
  jwt_secret: "hunter2"

notifications:
  - type: ntfy
    url: "http://10.100.1.104:8080"
    topic: "ioc-alerts"
  - type: webhook
    url: "https://hooks.example.com/ioc"
    method: "POST"
    headers:
      Authorization: "Bearer xxx"

alerts:
  hypervisor_cpu_high:
    threshold: 90
    duration: "5m"
    severity: "warning"
  vm_powered_off:
    grace_period: "2m"
    severity: "critical"
  website_down:
    severity: "critical"
  ssl_expiring:
    within: "720h"
    severity: "warning"
  server_drift:
    threshold: 3
    severity: "warning"
  emergency_stop:
    severity: "critical"

retention:
  checks_days: 3
  alerts_days: 14
  audit_days: 60
  prune_every: "30m"
`

func TestLoad_FromYAML(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, fullYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "ioc:secret@tcp(db:3306)/ioc", cfg.DB.DSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/var/log/ioc/ioc.log", cfg.LogFile)
	assert.Equal(t, 10, cfg.LogMaxSizeMB)
	assert.Equal(t, 3, cfg.LogMaxBackups, "unset rotation fields keep defaults")
	assert.Equal(t, 15*time.Second, cfg.RefreshInterval.Duration)
	assert.Equal(t, 8, cfg.WorkerPoolSize)

	assert.Equal(t, "Northern Rail IOC", cfg.Site.Title)
	assert.Equal(t, "Northern Rail", cfg.Site.Organisation)

	assert.True(t, cfg.WPM.ProbeEnabled)
	assert.Equal(t, 2*time.Minute, cfg.WPM.Interval.Duration)
	assert.Equal(t, 5*time.Second, cfg.WPM.Timeout.Duration)
	assert.Equal(t, 1500*time.Millisecond, cfg.WPM.SlowThreshold.Duration)

	require.Len(t, cfg.SCM.Servers, 1)
	srv := cfg.SCM.Servers[0]
	assert.Equal(t, "web-prod-01", srv.Name)
	assert.Equal(t, 2222, srv.Port)
	assert.Equal(t, []string{"/etc/passwd", "/etc/ssh/sshd_config"}, srv.Paths)
	assert.Equal(t, 10*time.Minute, srv.Interval.Duration)

	assert.True(t, cfg.Rail.Enabled)
	assert.Equal(t, time.Second, cfg.Rail.Tick.Duration)
	assert.Equal(t, "hunter2", cfg.Rail.JWTSecret)

	require.Len(t, cfg.Notifications, 2)
	assert.Equal(t, "ntfy", cfg.Notifications[0].Type)
	assert.Equal(t, "ioc-alerts", cfg.Notifications[0].Topic)
	assert.Equal(t, "webhook", cfg.Notifications[1].Type)
	assert.Equal(t, "Bearer xxx", cfg.Notifications[1].Headers["Authorization"])

	require.NotNil(t, cfg.Alerts.HypervisorCPUHigh)
	assert.Equal(t, 90.0, cfg.Alerts.HypervisorCPUHigh.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.HypervisorCPUHigh.Duration.Duration)
	require.NotNil(t, cfg.Alerts.VMPoweredOff)
	assert.Equal(t, 2*time.Minute, cfg.Alerts.VMPoweredOff.GracePeriod.Duration)
	require.NotNil(t, cfg.Alerts.WebsiteDown)
	require.NotNil(t, cfg.Alerts.SSLExpiring)
	assert.Equal(t, 720*time.Hour, cfg.Alerts.SSLExpiring.Within.Duration)
	require.NotNil(t, cfg.Alerts.ServerDrift)
	assert.Equal(t, 3, cfg.Alerts.ServerDrift.Threshold)
	require.NotNil(t, cfg.Alerts.EmergencyStop)
	assert.Equal(t, "critical", cfg.Alerts.EmergencyStop.Severity)

	assert.Equal(t, 3, cfg.Retention.ChecksDays)
	assert.Equal(t, 14, cfg.Retention.AlertsDays)
	assert.Equal(t, 60, cfg.Retention.AuditDays)
	assert.Equal(t, 30*time.Minute, cfg.Retention.PruneEvery.Duration)
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	_, err := Load("/nonexistent/path/ioc.yml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "ioc.db", cfg.DB.DSN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval.Duration)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.False(t, cfg.WPM.ProbeEnabled)
	assert.True(t, cfg.Rail.Enabled)
	assert.Equal(t, 30, cfg.Retention.AlertsDays)
	assert.Equal(t, 90, cfg.Retention.AuditDays)
	assert.Empty(t, cfg.Notifications)
}

func TestLoad_EnvVarSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("MYSQL_PASSWORD", "s3cret")

	path := writeYAML(t, `
db:
  driver: mysql
  dsn: "ioc:${MYSQL_PASSWORD}@tcp(db:3306)/ioc"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ioc:s3cret@tcp(db:3306)/ioc", cfg.DB.DSN)
}

func TestLoad_EnvVarSubstitution_Unset(t *testing.T) {
	clearEnv(t)

	path := writeYAML(t, `
db:
  dsn: "${IOC_TEST_UNSET_DSN}"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.dsn is required")
}

func TestLoad_EnvOverridesYAMLScalars(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, fullYAML)

	t.Setenv("IOC_LISTEN", ":5555")
	t.Setenv("IOC_LOG_LEVEL", "warn")
	t.Setenv("IOC_DB_DRIVER", "sqlite")
	t.Setenv("IOC_DB_DSN", "/tmp/env.db")
	t.Setenv("IOC_REFRESH_INTERVAL", "1m")
	t.Setenv("IOC_WORKER_POOL_SIZE", "2")
	t.Setenv("IOC_RAIL_JWT_SECRET", "from-env")
	t.Setenv("IOC_SITE_TITLE", "Env IOC")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":5555", cfg.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/env.db", cfg.DB.DSN)
	assert.Equal(t, time.Minute, cfg.RefreshInterval.Duration)
	assert.Equal(t, 2, cfg.WorkerPoolSize)
	assert.Equal(t, "from-env", cfg.Rail.JWTSecret)
	assert.Equal(t, "Env IOC", cfg.Site.Title)
	// Lists from YAML are untouched.
	require.Len(t, cfg.SCM.Servers, 1)
	require.Len(t, cfg.Notifications, 2)
}

func TestLoad_EnvInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("IOC_REFRESH_INTERVAL", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing environment")
}

func TestLoad_NtfyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("IOC_NTFY_URL", "http://ntfy:8080")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Notifications, 1)
	assert.Equal(t, "ntfy", cfg.Notifications[0].Type)
	assert.Equal(t, "ioc-alerts", cfg.Notifications[0].Topic)

	t.Setenv("IOC_NTFY_TOPIC", "ops")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Notifications[0].Topic)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.DB.Driver = "postgres" },
			wantErr: "db.driver must be one of",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.DB.DSN = "" },
			wantErr: "db.dsn is required",
		},
		{
			name:    "scm server missing host",
			mutate:  func(c *Config) { c.SCM.Servers[0].Host = "" },
			wantErr: "scm.servers[0]: host is required",
		},
		{
			name:    "scm server missing user",
			mutate:  func(c *Config) { c.SCM.Servers[0].User = "" },
			wantErr: "scm.servers[0]: user is required",
		},
		{
			name:    "scm server missing key",
			mutate:  func(c *Config) { c.SCM.Servers[0].KeyPath = "" },
			wantErr: "scm.servers[0]: key_path is required",
		},
		{
			name:    "scm server missing paths",
			mutate:  func(c *Config) { c.SCM.Servers[0].Paths = nil },
			wantErr: "at least one path is required",
		},
		{
			name:    "scm server zero interval",
			mutate:  func(c *Config) { c.SCM.Servers[0].Interval = Duration{} },
			wantErr: "interval must be > 0",
		},
		{
			name: "notification unknown type",
			mutate: func(c *Config) {
				c.Notifications = []NotificationConfig{{Type: "slack", URL: "http://x"}}
			},
			wantErr: "unknown type \"slack\"",
		},
		{
			name: "ntfy missing topic",
			mutate: func(c *Config) {
				c.Notifications = []NotificationConfig{{Type: "ntfy", URL: "http://x"}}
			},
			wantErr: "topic is required for ntfy",
		},
		{
			name: "webhook missing url",
			mutate: func(c *Config) {
				c.Notifications = []NotificationConfig{{Type: "webhook"}}
			},
			wantErr: "url is required for webhook",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level must be one of",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.LogFormat = "yaml" },
			wantErr: "log_format must be one of",
		},
		{
			name:    "refresh interval zero",
			mutate:  func(c *Config) { c.RefreshInterval = Duration{} },
			wantErr: "refresh_interval must be > 0",
		},
		{
			name:    "worker_pool_size zero",
			mutate:  func(c *Config) { c.WorkerPoolSize = 0 },
			wantErr: "worker_pool_size must be >= 1",
		},
		{
			name: "probe enabled without timeout",
			mutate: func(c *Config) {
				c.WPM.ProbeEnabled = true
				c.WPM.Timeout = Duration{}
			},
			wantErr: "wpm: interval and timeout must be > 0",
		},
		{
			name:    "rail tick zero",
			mutate:  func(c *Config) { c.Rail.Tick = Duration{} },
			wantErr: "rail.tick must be > 0",
		},
		{
			name: "cpu threshold zero",
			mutate: func(c *Config) {
				c.Alerts.HypervisorCPUHigh = &AlertHypervisorCPUHigh{Duration: Duration{time.Minute}}
			},
			wantErr: "alerts.hypervisor_cpu_high: threshold must be > 0",
		},
		{
			name: "drift threshold zero",
			mutate: func(c *Config) {
				c.Alerts.ServerDrift = &AlertServerDrift{}
			},
			wantErr: "alerts.server_drift: threshold must be > 0",
		},
		{
			name: "ssl within zero",
			mutate: func(c *Config) {
				c.Alerts.SSLExpiring = &AlertSSLExpiring{}
			},
			wantErr: "alerts.ssl_expiring: within must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "{{invalid yaml")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `refresh_interval: "not-a-duration"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_ValidationFails(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `log_level: "loud"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation")
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
}

func TestDuration_MarshalYAML(t *testing.T) {
	d := Duration{Duration: 5 * time.Minute}
	v, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "5m0s", v)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("500ms")))
	assert.Equal(t, 500*time.Millisecond, d.Duration)
	assert.Error(t, d.UnmarshalText([]byte("5 minutes")))
}

func FuzzExpandEnvVars(f *testing.F) {
	f.Add([]byte(`listen: ":8080"`))
	f.Add([]byte(`dsn: "${MYSQL_DSN}"`))
	f.Add([]byte(`${} ${VAR} $VAR`))
	f.Add([]byte(`jwt_secret: "${A}${B}"`))
	f.Fuzz(func(t *testing.T, data []byte) {
		_ = expandEnvVars(data)
	})
}

// validConfig returns a minimal valid Config for mutation in tests.
func validConfig() *Config {
	cfg := Defaults()
	cfg.SCM.Servers = []SSHServerConfig{
		{
			Name:     "web-prod-01",
			Host:     "10.0.1.10",
			User:     "audit",
			KeyPath:  "/config/ssh/id_ed25519",
			Paths:    []string{"/etc/passwd"},
			Interval: Duration{5 * time.Minute},
		},
	}
	return cfg
}
