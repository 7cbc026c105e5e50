package alerter

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/notify"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProvider records notifications for assertions.
type testProvider struct {
	sent []model.Notification
}

func (p *testProvider) Name() string { return "test" }
func (p *testProvider) Send(_ context.Context, n model.Notification) error {
	p.sent = append(p.sent, n)
	return nil
}

var _ notify.Provider = (*testProvider)(nil)

// fakeRail reports a fixed emergency state.
type fakeRail struct {
	es rail.EmergencySystems
}

func (f *fakeRail) Emergency() rail.EmergencySystems { return f.es }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testNow = time.Unix(1_700_000_000, 0)

// newTestAlerter wires an Alerter to a temp store and a recording provider,
// with the clock frozen at testNow.
func newTestAlerter(t *testing.T, c *cache.Cache, cfg AlertConfig) (*Alerter, *testProvider) {
	t.Helper()
	p := &testProvider{}
	a := NewAlerter(c, newTestStore(t), []notify.Provider{p}, cfg, nil)
	a.now = func() time.Time { return testNow }
	return a, p
}

// advance moves the alerter clock forward by d.
func advance(a *Alerter, d time.Duration) {
	now := a.now().Add(d)
	a.now = func() time.Time { return now }
}

func i64(v int64) *int64 { return &v }

// ----------------------------------------------------------------------------
// Configuration
// ----------------------------------------------------------------------------

func TestDefaultAlertConfig(t *testing.T) {
	cfg := DefaultAlertConfig()

	require.NotNil(t, cfg.HypervisorCPUHigh)
	require.NotNil(t, cfg.VMPoweredOff)
	require.NotNil(t, cfg.WebsiteDown)
	require.NotNil(t, cfg.SSLExpiring)
	require.NotNil(t, cfg.ServerDrift)
	require.NotNil(t, cfg.EmergencyStop)

	assert.Equal(t, float64(90), cfg.HypervisorCPUHigh.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.HypervisorCPUHigh.Duration)
	assert.Equal(t, 10*time.Minute, cfg.VMPoweredOff.GracePeriod)
	assert.Equal(t, "critical", cfg.WebsiteDown.Severity)
	assert.Equal(t, 30*24*time.Hour, cfg.SSLExpiring.Within)
	assert.Equal(t, float64(1), cfg.ServerDrift.Threshold)
	assert.Equal(t, "critical", cfg.EmergencyStop.Severity)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.AlertsConfig{
		HypervisorCPUHigh: &config.AlertHypervisorCPUHigh{
			Threshold: 75, Duration: config.Duration{Duration: time.Minute}, Severity: "critical",
		},
		SSLExpiring: &config.AlertSSLExpiring{Within: config.Duration{Duration: 72 * time.Hour}},
		ServerDrift: &config.AlertServerDrift{Threshold: 3},
	})

	assert.Equal(t, float64(75), cfg.HypervisorCPUHigh.Threshold)
	assert.Equal(t, time.Minute, cfg.HypervisorCPUHigh.Duration)
	assert.Equal(t, "critical", cfg.HypervisorCPUHigh.Severity)
	assert.Equal(t, 1*time.Hour, cfg.HypervisorCPUHigh.Cooldown, "cooldown keeps its default")

	assert.Equal(t, 72*time.Hour, cfg.SSLExpiring.Within)
	assert.Equal(t, "warning", cfg.SSLExpiring.Severity, "empty severity keeps the default")
	assert.Equal(t, float64(3), cfg.ServerDrift.Threshold)

	def := DefaultAlertConfig()
	assert.Equal(t, def.VMPoweredOff, cfg.VMPoweredOff)
	assert.Equal(t, def.WebsiteDown, cfg.WebsiteDown)
}

func TestNewAlerter(t *testing.T) {
	a := NewAlerter(cache.New(), newTestStore(t), nil, DefaultAlertConfig(), nil)

	assert.Equal(t, 30*time.Second, a.interval)
	assert.NotNil(t, a.lastFired)
	assert.NotNil(t, a.sustained)
	assert.Nil(t, a.rail)
}

// ----------------------------------------------------------------------------
// Virtualization rules
// ----------------------------------------------------------------------------

func TestEvaluate_HypervisorCPUSustained(t *testing.T) {
	c := cache.New()
	c.UpdateVMAN(cache.VMAN{Hypervisors: []model.Hypervisor{
		{ID: 1, Name: "esx-01", Platform: "vmware", CPUUsagePct: 95, Status: model.HypervisorOnline},
	}})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	assert.Empty(t, p.sent, "first observation only starts the clock")

	advance(a, 2*time.Minute)
	a.evaluate(context.Background())
	assert.Empty(t, p.sent)

	advance(a, 3*time.Minute)
	a.evaluate(context.Background())
	require.Len(t, p.sent, 1)
	assert.Equal(t, "hypervisor_cpu_high", p.sent[0].AlertType)
	assert.Equal(t, "vman", p.sent[0].Source)
	assert.Equal(t, "esx-01", p.sent[0].Subject)
	assert.Equal(t, "95", p.sent[0].Metadata["value"])
	assert.Equal(t, "vmware", p.sent[0].Metadata["platform"])
}

func TestEvaluate_HypervisorCPURecoveryResetsClock(t *testing.T) {
	c := cache.New()
	hv := model.Hypervisor{ID: 1, Name: "kvm-01", CPUUsagePct: 95, Status: model.HypervisorOnline}
	c.UpdateVMAN(cache.VMAN{Hypervisors: []model.Hypervisor{hv}})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())

	hv.CPUUsagePct = 20
	c.UpdateVMAN(cache.VMAN{Hypervisors: []model.Hypervisor{hv}})
	advance(a, 3*time.Minute)
	a.evaluate(context.Background())

	hv.CPUUsagePct = 95
	c.UpdateVMAN(cache.VMAN{Hypervisors: []model.Hypervisor{hv}})
	advance(a, 3*time.Minute)
	a.evaluate(context.Background())
	assert.Empty(t, p.sent, "dip below threshold restarts the sustained window")
}

func TestEvaluate_OfflineHypervisorSkipped(t *testing.T) {
	c := cache.New()
	c.UpdateVMAN(cache.VMAN{Hypervisors: []model.Hypervisor{
		{ID: 1, Name: "xen-01", CPUUsagePct: 100, Status: model.HypervisorOffline},
	}})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	advance(a, time.Hour)
	a.evaluate(context.Background())
	assert.Empty(t, p.sent)
}

func TestEvaluate_VMPoweredOffGrace(t *testing.T) {
	c := cache.New()
	c.UpdateVMAN(cache.VMAN{
		Hypervisors: []model.Hypervisor{{ID: 7, Name: "hv-07", Status: model.HypervisorOnline}},
		VMs: []model.VirtualMachine{
			{ID: 1, UUID: "vm-a", Name: "web-01", HypervisorID: i64(7), PowerState: model.PowerStopped},
			{ID: 2, UUID: "vm-b", Name: "orphan", PowerState: model.PowerSuspended},
			{ID: 3, UUID: "vm-c", Name: "db-01", HypervisorID: i64(7), PowerState: model.PowerRunning},
		},
	})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	advance(a, 5*time.Minute)
	a.evaluate(context.Background())
	assert.Empty(t, p.sent, "still inside the grace period")

	advance(a, 5*time.Minute)
	a.evaluate(context.Background())
	require.Len(t, p.sent, 2)

	bySubject := map[string]model.Notification{}
	for _, n := range p.sent {
		assert.Equal(t, "vm_powered_off", n.AlertType)
		bySubject[n.Subject] = n
	}
	assert.Contains(t, bySubject["web-01"].Message, "[hv-07]")
	assert.Contains(t, bySubject["orphan"].Message, "[unassigned]")
	assert.Equal(t, model.PowerSuspended, bySubject["orphan"].Metadata["power_state"])
}

func TestEvaluate_VMPowerOnClearsGrace(t *testing.T) {
	c := cache.New()
	vm := model.VirtualMachine{ID: 1, UUID: "vm-a", Name: "web-01", PowerState: model.PowerStopped}
	c.UpdateVMAN(cache.VMAN{VMs: []model.VirtualMachine{vm}})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	assert.Contains(t, a.sustained, "vm_off:vm-a")

	vm.PowerState = model.PowerRunning
	c.UpdateVMAN(cache.VMAN{VMs: []model.VirtualMachine{vm}})
	advance(a, 20*time.Minute)
	a.evaluate(context.Background())
	assert.NotContains(t, a.sustained, "vm_off:vm-a")
	assert.Empty(t, p.sent)
}

// ----------------------------------------------------------------------------
// Web performance rules
// ----------------------------------------------------------------------------

func TestEvaluate_WebsiteDown(t *testing.T) {
	c := cache.New()
	c.UpdateWPM(cache.WPM{Websites: []model.Website{
		{ID: 1, Name: "Portal", URL: "https://portal.example", LastStatus: model.SiteDown, Enabled: true},
		{ID: 2, Name: "Paused", URL: "https://paused.example", LastStatus: model.SiteDown, Enabled: false},
		{ID: 3, Name: "Fine", URL: "https://fine.example", LastStatus: model.SiteUp, Enabled: true},
	}})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	require.Len(t, p.sent, 1)
	assert.Equal(t, "website_down", p.sent[0].AlertType)
	assert.Equal(t, "critical", p.sent[0].Severity)
	assert.Equal(t, "Portal", p.sent[0].Subject)
	assert.Equal(t, "https://portal.example", p.sent[0].Metadata["url"])
}

func TestEvaluate_SSLExpiring(t *testing.T) {
	soon := testNow.Add(10 * 24 * time.Hour).Unix()
	later := testNow.Add(90 * 24 * time.Hour).Unix()
	gone := testNow.Add(-24 * time.Hour).Unix()

	c := cache.New()
	c.UpdateWPM(cache.WPM{Websites: []model.Website{
		{ID: 1, Name: "Soon", URL: "https://soon.example", LastStatus: model.SiteUp, Enabled: true, SSLExpiryDate: &soon},
		{ID: 2, Name: "Later", URL: "https://later.example", LastStatus: model.SiteUp, Enabled: true, SSLExpiryDate: &later},
		{ID: 3, Name: "Gone", URL: "https://gone.example", LastStatus: model.SiteUp, Enabled: true, SSLExpiryDate: &gone},
	}})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	require.Len(t, p.sent, 2)

	bySubject := map[string]model.Notification{}
	for _, n := range p.sent {
		assert.Equal(t, "ssl_expiring", n.AlertType)
		bySubject[n.Subject] = n
	}
	assert.Equal(t, "warning", bySubject["Soon"].Severity)
	assert.Contains(t, bySubject["Soon"].Message, "expires in 10 days")
	assert.Equal(t, "critical", bySubject["Gone"].Severity, "an expired certificate escalates")
	assert.Contains(t, bySubject["Gone"].Message, "expired on")
	assert.NotContains(t, bySubject, "Later")
}

func TestEvaluate_ServerCertificateExpiring(t *testing.T) {
	c := cache.New()
	c.UpdateSCM(cache.SCM{
		Servers: []model.Server{{ID: 4, Hostname: "app-04", ComplianceStatus: model.Compliant}},
		Certificates: []model.Certificate{
			{ServerID: 4, Subject: "CN=app-04", Serial: "0A1B", NotAfter: testNow.Add(5 * 24 * time.Hour).Unix()},
			{ServerID: 9, Subject: "CN=ghost", Serial: "FF", NotAfter: testNow.Add(24 * time.Hour).Unix()},
		},
	})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	require.Len(t, p.sent, 2)
	assert.Contains(t, a.lastFired, "cert:4/0A1B")
	assert.Contains(t, a.lastFired, "cert:9/FF")

	subjects := []string{p.sent[0].Subject, p.sent[1].Subject}
	assert.ElementsMatch(t, []string{"app-04", "server 9"}, subjects)
	for _, n := range p.sent {
		assert.Equal(t, "scm", n.Source)
	}
}

// ----------------------------------------------------------------------------
// Server configuration rules
// ----------------------------------------------------------------------------

func TestEvaluate_ServerDrift(t *testing.T) {
	c := cache.New()
	c.UpdateSCM(cache.SCM{Servers: []model.Server{
		{ID: 1, Hostname: "web-01", ComplianceStatus: model.NonCompliant, DriftCount: 0, Environment: "production"},
		{ID: 2, Hostname: "web-02", ComplianceStatus: model.Compliant, DriftCount: 2},
		{ID: 3, Hostname: "web-03", ComplianceStatus: model.Compliant, DriftCount: 0},
	}})
	a, p := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	require.Len(t, p.sent, 2)

	hosts := []string{p.sent[0].Subject, p.sent[1].Subject}
	assert.ElementsMatch(t, []string{"web-01", "web-02"}, hosts)
	for _, n := range p.sent {
		assert.Equal(t, "server_drift", n.AlertType)
		if n.Subject == "web-01" {
			assert.Equal(t, "production", n.Metadata["environment"])
		}
	}
}

func TestEvaluate_ServerDriftThreshold(t *testing.T) {
	c := cache.New()
	c.UpdateSCM(cache.SCM{Servers: []model.Server{
		{ID: 1, Hostname: "web-01", ComplianceStatus: model.Compliant, DriftCount: 2},
	}})
	cfg := DefaultAlertConfig()
	cfg.ServerDrift.Threshold = 3
	a, p := newTestAlerter(t, c, cfg)

	a.evaluate(context.Background())
	assert.Empty(t, p.sent)
}

// ----------------------------------------------------------------------------
// Rail emergency
// ----------------------------------------------------------------------------

func TestEvaluate_RailEmergency(t *testing.T) {
	fr := &fakeRail{}
	a, p := newTestAlerter(t, cache.New(), DefaultAlertConfig())
	a.rail = fr

	a.evaluate(context.Background())
	assert.Empty(t, p.sent)

	fr.es = rail.EmergencySystems{Active: true, TriggeredBy: "signaller-1", Reason: "obstruction"}
	a.evaluate(context.Background())
	require.Len(t, p.sent, 1)
	assert.Equal(t, "emergency_stop", p.sent[0].AlertType)
	assert.Equal(t, "critical", p.sent[0].Severity)
	assert.Equal(t, "rail", p.sent[0].Source)
	assert.Equal(t, "Emergency stop activated by signaller-1: obstruction", p.sent[0].Message)

	advance(a, 5*time.Minute)
	a.evaluate(context.Background())
	assert.Len(t, p.sent, 1, "still inside cooldown")

	advance(a, 15*time.Minute)
	a.evaluate(context.Background())
	assert.Len(t, p.sent, 2)
}

func TestEvaluate_NilConfigFields(t *testing.T) {
	soon := testNow.Add(time.Hour).Unix()
	c := cache.New()
	c.UpdateVMAN(cache.VMAN{
		Hypervisors: []model.Hypervisor{{ID: 1, Name: "hv", CPUUsagePct: 100, Status: model.HypervisorOnline}},
		VMs:         []model.VirtualMachine{{ID: 1, UUID: "u", Name: "vm", PowerState: model.PowerStopped}},
	})
	c.UpdateWPM(cache.WPM{Websites: []model.Website{
		{ID: 1, Name: "s", URL: "https://s", LastStatus: model.SiteDown, Enabled: true, SSLExpiryDate: &soon},
	}})
	c.UpdateSCM(cache.SCM{Servers: []model.Server{{ID: 1, Hostname: "h", ComplianceStatus: model.NonCompliant}}})

	a, p := newTestAlerter(t, c, AlertConfig{})
	a.rail = &fakeRail{es: rail.EmergencySystems{Active: true}}

	a.evaluate(context.Background())
	advance(a, time.Hour)
	a.evaluate(context.Background())
	assert.Empty(t, p.sent)
}

// ----------------------------------------------------------------------------
// fire
// ----------------------------------------------------------------------------

func TestFire_Cooldown(t *testing.T) {
	a, p := newTestAlerter(t, cache.New(), DefaultAlertConfig())
	notif := model.Notification{AlertType: "test", Severity: "warning", Source: "wpm", Subject: "s"}

	a.fire(context.Background(), testNow, "k", time.Hour, notif)
	a.fire(context.Background(), testNow.Add(30*time.Minute), "k", time.Hour, notif)
	assert.Len(t, p.sent, 1, "second fire within cooldown should be suppressed")

	a.fire(context.Background(), testNow.Add(2*time.Hour), "k", time.Hour, notif)
	assert.Len(t, p.sent, 2)
}

func TestFire_LogsToStore(t *testing.T) {
	s := newTestStore(t)
	p := &testProvider{}
	a := NewAlerter(cache.New(), s, []notify.Provider{p}, DefaultAlertConfig(), nil)

	a.fire(context.Background(), testNow, "store_key", time.Hour, model.Notification{
		AlertType: "website_down", Severity: "critical", Message: "Portal is not responding",
		Source: "wpm", Subject: "Portal",
	})

	alerts, err := s.ListAlerts(10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, testNow.Unix(), alerts[0].Timestamp)
	assert.Equal(t, "website_down", alerts[0].AlertType)
	assert.Equal(t, "wpm", alerts[0].Source)
	assert.Equal(t, "Portal", alerts[0].Subject)
	assert.Equal(t, "critical", alerts[0].Severity)
}

func TestFire_MultipleProviders(t *testing.T) {
	p1 := &testProvider{}
	p2 := &testProvider{}
	a := NewAlerter(cache.New(), newTestStore(t), []notify.Provider{p1, p2}, DefaultAlertConfig(), nil)

	a.fire(context.Background(), testNow, "multi", time.Hour, model.Notification{AlertType: "multi"})

	assert.Len(t, p1.sent, 1)
	assert.Len(t, p2.sent, 1)
}

// failingProvider simulates a provider that returns errors.
type failingProvider struct{}

func (p *failingProvider) Name() string { return "failing" }
func (p *failingProvider) Send(_ context.Context, _ model.Notification) error {
	return fmt.Errorf("provider unavailable")
}

func TestFire_ProviderError(t *testing.T) {
	s := newTestStore(t)
	p := &testProvider{}
	a := NewAlerter(cache.New(), s, []notify.Provider{&failingProvider{}, p}, DefaultAlertConfig(), nil)

	a.fire(context.Background(), testNow, "fail_key", time.Hour, model.Notification{AlertType: "test_fail"})

	assert.Len(t, p.sent, 1, "a failing provider does not block the others")
	alerts, err := s.ListAlerts(10)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestFire_StoreError(t *testing.T) {
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	s.Close()

	p := &testProvider{}
	a := NewAlerter(cache.New(), s, []notify.Provider{p}, DefaultAlertConfig(), nil)

	a.fire(context.Background(), testNow, "store_err", time.Hour, model.Notification{AlertType: "test_store_err"})
	require.Len(t, p.sent, 1)
}

func TestCleanup_RemovesStaleEntries(t *testing.T) {
	a, _ := newTestAlerter(t, cache.New(), DefaultAlertConfig())
	a.lastFired["old"] = testNow.Add(-7 * time.Hour)
	a.lastFired["new"] = testNow.Add(-time.Hour)
	a.sustained["gone"] = testNow.Add(-time.Minute)

	a.cleanup(testNow)
	assert.NotContains(t, a.lastFired, "old")
	assert.Contains(t, a.lastFired, "new")
	assert.Empty(t, a.sustained, "keys not observed this round are dropped")
}

func TestCleanup_KeepsFiredKeysForLongCooldown(t *testing.T) {
	cfg := DefaultAlertConfig()
	cfg.WebsiteDown.Cooldown = 12 * time.Hour
	a, _ := newTestAlerter(t, cache.New(), cfg)
	a.lastFired["site_down:1"] = testNow.Add(-8 * time.Hour)

	a.cleanup(testNow)
	assert.Contains(t, a.lastFired, "site_down:1")
	assert.Equal(t, 12*time.Hour, a.firedRetention())
}

func TestEvaluate_VMPoweredOffLongGrace(t *testing.T) {
	c := cache.New()
	c.UpdateVMAN(cache.VMAN{VMs: []model.VirtualMachine{
		{ID: 1, UUID: "vm-a", Name: "web-01", PowerState: model.PowerStopped},
	}})
	cfg := AlertConfig{VMPoweredOff: &GraceAlert{GracePeriod: 8 * time.Hour, Severity: "warning", Cooldown: time.Hour}}
	a, p := newTestAlerter(t, c, cfg)

	var firstAt time.Duration
	for elapsed := time.Duration(0); elapsed <= 24*time.Hour; elapsed += 30 * time.Second {
		a.evaluate(context.Background())
		if len(p.sent) > 0 && firstAt == 0 {
			firstAt = elapsed
		}
		advance(a, 30*time.Second)
	}
	require.NotEmpty(t, p.sent)
	assert.Equal(t, 8*time.Hour, firstAt)
	assert.Len(t, p.sent, 17, "once at 8h, then hourly until 24h")
}

func TestEvaluate_VanishedVMForgotten(t *testing.T) {
	c := cache.New()
	c.UpdateVMAN(cache.VMAN{VMs: []model.VirtualMachine{
		{ID: 1, UUID: "vm-a", Name: "web-01", PowerState: model.PowerStopped},
	}})
	a, _ := newTestAlerter(t, c, DefaultAlertConfig())

	a.evaluate(context.Background())
	require.Contains(t, a.sustained, "vm_off:vm-a")

	c.UpdateVMAN(cache.VMAN{})
	advance(a, time.Minute)
	a.evaluate(context.Background())
	assert.NotContains(t, a.sustained, "vm_off:vm-a")
}

func TestRun_CancelsCleanly(t *testing.T) {
	a, _ := newTestAlerter(t, cache.New(), DefaultAlertConfig())
	a.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestFormatSeverity(t *testing.T) {
	assert.Equal(t, "CRITICAL", FormatSeverity("critical"))
	assert.Equal(t, "", FormatSeverity(""))
}
