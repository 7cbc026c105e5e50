// Package alerter evaluates alert rules against cached state.
package alerter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/notify"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/store"
)

// AlertConfig holds configuration for alert rules. A nil rule is disabled.
type AlertConfig struct {
	HypervisorCPUHigh *ThresholdAlert
	VMPoweredOff      *GraceAlert
	WebsiteDown       *SimpleAlert
	SSLExpiring       *WindowAlert
	ServerDrift       *ThresholdAlert
	EmergencyStop     *SimpleAlert
}

// ThresholdAlert triggers when a value reaches a threshold.
type ThresholdAlert struct {
	Threshold float64
	Duration  time.Duration
	Severity  string
	Cooldown  time.Duration
}

// GraceAlert triggers when a condition persists past a grace period.
type GraceAlert struct {
	GracePeriod time.Duration
	Severity    string
	Cooldown    time.Duration
}

// WindowAlert triggers when a deadline falls within a window from now.
type WindowAlert struct {
	Within   time.Duration
	Severity string
	Cooldown time.Duration
}

// SimpleAlert triggers on a boolean condition.
type SimpleAlert struct {
	Severity string
	Cooldown time.Duration
}

// DefaultAlertConfig returns sensible alert defaults.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		HypervisorCPUHigh: &ThresholdAlert{
			Threshold: 90, Duration: 5 * time.Minute, Severity: "warning", Cooldown: 1 * time.Hour,
		},
		VMPoweredOff: &GraceAlert{
			GracePeriod: 10 * time.Minute, Severity: "warning", Cooldown: 6 * time.Hour,
		},
		WebsiteDown: &SimpleAlert{
			Severity: "critical", Cooldown: 30 * time.Minute,
		},
		SSLExpiring: &WindowAlert{
			Within: 30 * 24 * time.Hour, Severity: "warning", Cooldown: 24 * time.Hour,
		},
		ServerDrift: &ThresholdAlert{
			Threshold: 1, Severity: "warning", Cooldown: 6 * time.Hour,
		},
		EmergencyStop: &SimpleAlert{
			Severity: "critical", Cooldown: 15 * time.Minute,
		},
	}
}

// FromConfig overlays the configured thresholds on the defaults. Rules that
// are absent from the configuration keep their default settings.
func FromConfig(a config.AlertsConfig) AlertConfig {
	cfg := DefaultAlertConfig()
	if c := a.HypervisorCPUHigh; c != nil {
		cfg.HypervisorCPUHigh.Threshold = c.Threshold
		cfg.HypervisorCPUHigh.Duration = c.Duration.Duration
		if c.Severity != "" {
			cfg.HypervisorCPUHigh.Severity = c.Severity
		}
	}
	if c := a.VMPoweredOff; c != nil {
		cfg.VMPoweredOff.GracePeriod = c.GracePeriod.Duration
		if c.Severity != "" {
			cfg.VMPoweredOff.Severity = c.Severity
		}
	}
	if c := a.WebsiteDown; c != nil && c.Severity != "" {
		cfg.WebsiteDown.Severity = c.Severity
	}
	if c := a.SSLExpiring; c != nil {
		cfg.SSLExpiring.Within = c.Within.Duration
		if c.Severity != "" {
			cfg.SSLExpiring.Severity = c.Severity
		}
	}
	if c := a.ServerDrift; c != nil {
		cfg.ServerDrift.Threshold = float64(c.Threshold)
		if c.Severity != "" {
			cfg.ServerDrift.Severity = c.Severity
		}
	}
	if c := a.EmergencyStop; c != nil && c.Severity != "" {
		cfg.EmergencyStop.Severity = c.Severity
	}
	return cfg
}

// EmergencySource reports the rail emergency stop latch.
type EmergencySource interface {
	Emergency() rail.EmergencySystems
}

// Alerter evaluates rules and sends notifications.
type Alerter struct {
	cache     *cache.Cache
	store     *store.Store
	providers []notify.Provider
	config    AlertConfig
	rail      EmergencySource
	interval  time.Duration
	now       func() time.Time

	// Deduplication: maps alert key → last fired time
	lastFired map[string]time.Time

	// Track sustained conditions: maps alert key → first observed time
	sustained map[string]time.Time

	// Sustained keys seen during the current evaluation.
	observed map[string]struct{}
}

// NewAlerter creates a new alerter. rs may be nil when the rail simulator
// is disabled.
func NewAlerter(c *cache.Cache, s *store.Store, providers []notify.Provider, cfg AlertConfig, rs EmergencySource) *Alerter {
	return &Alerter{
		cache:     c,
		store:     s,
		providers: providers,
		config:    cfg,
		rail:      rs,
		interval:  30 * time.Second,
		now:       time.Now,
		lastFired: make(map[string]time.Time),
		sustained: make(map[string]time.Time),
		observed:  make(map[string]struct{}),
	}
}

// Run starts the alerter evaluation loop.
func (a *Alerter) Run(ctx context.Context) error {
	slog.Info("alerter started", "interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("alerter stopped")
			return ctx.Err()
		case <-ticker.C:
			a.evaluate(ctx)
		}
	}
}

// cleanup forgets sustained conditions that were not observed in the last
// evaluation and fired keys whose longest cooldown has passed.
func (a *Alerter) cleanup(now time.Time) {
	maxAge := a.firedRetention()
	for key, t := range a.lastFired {
		if now.Sub(t) > maxAge {
			delete(a.lastFired, key)
		}
	}
	for key := range a.sustained {
		if _, ok := a.observed[key]; !ok {
			delete(a.sustained, key)
		}
	}
}

// firedRetention is how long a fired key must be kept for its cooldown to
// hold: six hours or the longest configured cooldown.
func (a *Alerter) firedRetention() time.Duration {
	longest := 6 * time.Hour
	c := a.config
	if c.HypervisorCPUHigh != nil {
		longest = max(longest, c.HypervisorCPUHigh.Cooldown)
	}
	if c.VMPoweredOff != nil {
		longest = max(longest, c.VMPoweredOff.Cooldown)
	}
	if c.WebsiteDown != nil {
		longest = max(longest, c.WebsiteDown.Cooldown)
	}
	if c.SSLExpiring != nil {
		longest = max(longest, c.SSLExpiring.Cooldown)
	}
	if c.ServerDrift != nil {
		longest = max(longest, c.ServerDrift.Cooldown)
	}
	if c.EmergencyStop != nil {
		longest = max(longest, c.EmergencyStop.Cooldown)
	}
	return longest
}

// since returns when the sustained condition under key was first seen,
// starting it at now if it is new, and marks it observed.
func (a *Alerter) since(key string, now time.Time) time.Time {
	a.observed[key] = struct{}{}
	first, ok := a.sustained[key]
	if !ok {
		a.sustained[key] = now
		return now
	}
	return first
}

func (a *Alerter) evaluate(ctx context.Context) {
	snap := a.cache.Snapshot()
	now := a.now()
	clear(a.observed)

	a.evaluateVMAN(ctx, now, snap)
	a.evaluateWPM(ctx, now, snap)
	a.evaluateSCM(ctx, now, snap)

	if a.config.EmergencyStop != nil && a.rail != nil {
		if es := a.rail.Emergency(); es.Active {
			msg := fmt.Sprintf("Emergency stop activated by %s", es.TriggeredBy)
			if es.Reason != "" {
				msg += ": " + es.Reason
			}
			a.fire(ctx, now, "rail_emergency", a.config.EmergencyStop.Cooldown, model.Notification{
				AlertType: "emergency_stop",
				Severity:  a.config.EmergencyStop.Severity,
				Title:     "Rail Emergency Stop Active",
				Message:   msg,
				Source:    "rail",
				Subject:   "emergency_systems",
				Timestamp: now,
			})
		}
	}

	a.cleanup(now)
}

func (a *Alerter) evaluateVMAN(ctx context.Context, now time.Time, snap cache.CacheSnapshot) {
	if a.config.HypervisorCPUHigh != nil {
		for _, hv := range snap.HypervisorList() {
			if hv.Status == "offline" {
				delete(a.sustained, "hv_cpu:"+hv.Name)
				continue
			}
			a.checkSustainedThreshold(ctx, now,
				"hv_cpu:"+hv.Name,
				hv.CPUUsagePct,
				a.config.HypervisorCPUHigh,
				model.Notification{
					AlertType: "hypervisor_cpu_high",
					Severity:  a.config.HypervisorCPUHigh.Severity,
					Title:     fmt.Sprintf("Hypervisor CPU High: %s", hv.Name),
					Message:   fmt.Sprintf("[%s] CPU at %.0f%% for %s+", hv.Name, hv.CPUUsagePct, a.config.HypervisorCPUHigh.Duration),
					Source:    "vman",
					Subject:   hv.Name,
					Timestamp: now,
					Metadata:  map[string]string{"value": fmt.Sprintf("%.0f", hv.CPUUsagePct), "platform": hv.Platform},
				},
			)
		}
	}

	if a.config.VMPoweredOff != nil {
		for _, vm := range snap.VMList() {
			key := "vm_off:" + vm.UUID
			if vm.PowerState == "running" {
				delete(a.sustained, key)
				continue
			}
			if now.Sub(a.since(key, now)) >= a.config.VMPoweredOff.GracePeriod {
				host := "unassigned"
				if vm.HypervisorID != nil {
					if hv, ok := snap.Hypervisors[*vm.HypervisorID]; ok {
						host = hv.Name
					}
				}
				a.fire(ctx, now, key, a.config.VMPoweredOff.Cooldown, model.Notification{
					AlertType: "vm_powered_off",
					Severity:  a.config.VMPoweredOff.Severity,
					Title:     fmt.Sprintf("VM Powered Off: %s", vm.Name),
					Message:   fmt.Sprintf("[%s] %s is %s", host, vm.Name, vm.PowerState),
					Source:    "vman",
					Subject:   vm.Name,
					Timestamp: now,
					Metadata:  map[string]string{"uuid": vm.UUID, "power_state": vm.PowerState},
				})
			}
		}
	}
}

func (a *Alerter) evaluateWPM(ctx context.Context, now time.Time, snap cache.CacheSnapshot) {
	for _, site := range snap.WebsiteList() {
		if !site.Enabled {
			continue
		}
		if a.config.WebsiteDown != nil && site.LastStatus == model.SiteDown {
			a.fire(ctx, now, fmt.Sprintf("site_down:%d", site.ID), a.config.WebsiteDown.Cooldown, model.Notification{
				AlertType: "website_down",
				Severity:  a.config.WebsiteDown.Severity,
				Title:     fmt.Sprintf("Website Down: %s", site.Name),
				Message:   fmt.Sprintf("%s (%s) is not responding", site.Name, site.URL),
				Source:    "wpm",
				Subject:   site.Name,
				Timestamp: now,
				Metadata:  map[string]string{"url": site.URL},
			})
		}
		if a.config.SSLExpiring != nil && site.SSLExpiryDate != nil {
			a.checkExpiry(ctx, now, fmt.Sprintf("ssl:%d", site.ID), time.Unix(*site.SSLExpiryDate, 0), "wpm", site.Name,
				fmt.Sprintf("TLS certificate for %s", site.URL))
		}
	}

	if a.config.SSLExpiring != nil {
		servers := snap.Servers
		for _, cert := range snap.CertificateList() {
			host := fmt.Sprintf("server %d", cert.ServerID)
			if s, ok := servers[cert.ServerID]; ok {
				host = s.Hostname
			}
			a.checkExpiry(ctx, now, fmt.Sprintf("cert:%d/%s", cert.ServerID, cert.Serial), time.Unix(cert.NotAfter, 0), "scm", host,
				fmt.Sprintf("Certificate %s on %s", cert.Subject, host))
		}
	}
}

func (a *Alerter) evaluateSCM(ctx context.Context, now time.Time, snap cache.CacheSnapshot) {
	if a.config.ServerDrift == nil {
		return
	}
	for _, s := range snap.ServerList() {
		if s.ComplianceStatus != model.NonCompliant && float64(s.DriftCount) < a.config.ServerDrift.Threshold {
			continue
		}
		a.fire(ctx, now, "scm_drift:"+s.Hostname, a.config.ServerDrift.Cooldown, model.Notification{
			AlertType: "server_drift",
			Severity:  a.config.ServerDrift.Severity,
			Title:     fmt.Sprintf("Configuration Drift: %s", s.Hostname),
			Message:   fmt.Sprintf("[%s] %d configuration change(s) detected, compliance %s", s.Hostname, s.DriftCount, s.ComplianceStatus),
			Source:    "scm",
			Subject:   s.Hostname,
			Timestamp: now,
			Metadata: map[string]string{
				"drift_count": fmt.Sprintf("%d", s.DriftCount),
				"environment": s.Environment,
			},
		})
	}
}

func (a *Alerter) checkExpiry(ctx context.Context, now time.Time, key string, expiry time.Time, source, subject, what string) {
	left := expiry.Sub(now)
	if left > a.config.SSLExpiring.Within {
		return
	}
	severity := a.config.SSLExpiring.Severity
	msg := fmt.Sprintf("%s expires in %.0f days (%s)", what, left.Hours()/24, expiry.UTC().Format("2006-01-02"))
	if left <= 0 {
		severity = "critical"
		msg = fmt.Sprintf("%s expired on %s", what, expiry.UTC().Format("2006-01-02"))
	}
	a.fire(ctx, now, key, a.config.SSLExpiring.Cooldown, model.Notification{
		AlertType: "ssl_expiring",
		Severity:  severity,
		Title:     fmt.Sprintf("Certificate Expiring: %s", subject),
		Message:   msg,
		Source:    source,
		Subject:   subject,
		Timestamp: now,
		Metadata:  map[string]string{"expires": expiry.UTC().Format(time.RFC3339)},
	})
}

func (a *Alerter) checkSustainedThreshold(ctx context.Context, now time.Time, key string, value float64, cfg *ThresholdAlert, notif model.Notification) {
	if value < cfg.Threshold {
		delete(a.sustained, key)
		return
	}
	if now.Sub(a.since(key, now)) >= cfg.Duration {
		a.fire(ctx, now, key, cfg.Cooldown, notif)
	}
}

func (a *Alerter) fire(ctx context.Context, now time.Time, key string, cooldown time.Duration, notif model.Notification) {
	if last, ok := a.lastFired[key]; ok && now.Sub(last) < cooldown {
		return // still in cooldown
	}
	a.lastFired[key] = now

	// Log to store
	if err := a.store.InsertAlert(now.Unix(), notif.AlertType, notif.Source, notif.Subject, notif.Message, notif.Severity); err != nil {
		slog.Error("storing alert", "type", notif.AlertType, "error", err)
	}

	// Send to all providers
	for _, p := range a.providers {
		if err := p.Send(ctx, notif); err != nil {
			slog.Error("sending notification", "provider", p.Name(), "alert", notif.AlertType, "error", err)
		}
	}

	slog.Warn("alert fired",
		"type", notif.AlertType,
		"severity", notif.Severity,
		"source", notif.Source,
		"subject", notif.Subject,
		"title", notif.Title,
	)
}

// FormatSeverity returns an uppercase severity string for templates.
func FormatSeverity(s string) string {
	return strings.ToUpper(s)
}
