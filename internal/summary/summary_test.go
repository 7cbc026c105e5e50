package summary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/sample"
)

var frozen = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func int64p(v int64) *int64 { return &v }

func testSnapshot() cache.CacheSnapshot {
	c := cache.New()
	c.UpdateVMAN(cache.VMAN{
		Hypervisors: []model.Hypervisor{
			{ID: 1, Name: "esx-01", Status: "online", CPUUsagePct: 40, MemoryTotalMB: 100, MemoryUsedMB: 50},
			{ID: 2, Name: "esx-02", Status: "warning", CPUUsagePct: 91},
			{ID: 3, Name: "xen-01", Status: "offline"},
		},
		VMs: []model.VirtualMachine{
			{ID: 1, Name: "a", PowerState: "running", Health: "healthy"},
			{ID: 2, Name: "b", PowerState: "running", Health: "critical"},
			{ID: 3, Name: "c", PowerState: "stopped", Health: "warning"},
		},
		CloudInstances: []model.CloudInstance{
			{Provider: "aws", State: "running", MonthlyCost: 69.12},
			{Provider: "aws", State: "stopped", MonthlyCost: 0},
			{Provider: "gcp", State: "running", MonthlyCost: 395.52},
		},
		Recommendations: []model.Recommendation{
			{Status: "open", EstimatedSavings: 35},
			{Status: "open", EstimatedSavings: 18.5},
			{Status: "applied", EstimatedSavings: 120},
		},
	})
	c.UpdateWPM(cache.WPM{
		Websites: []model.Website{
			{ID: 1, Name: "Corp", LastStatus: "up", Enabled: true, SSLExpiryDate: int64p(frozen.Add(180 * 24 * time.Hour).Unix())},
			{ID: 2, Name: "Shop", LastStatus: "degraded", Enabled: true, SSLExpiryDate: int64p(frozen.Add(12 * 24 * time.Hour).Unix())},
			{ID: 3, Name: "Intranet", LastStatus: "up", Enabled: true},
			{ID: 4, Name: "Payments", LastStatus: "down", Enabled: true, SSLExpiryDate: int64p(frozen.Add(5 * 24 * time.Hour).Unix())},
			{ID: 5, Name: "Legacy", LastStatus: "down", Enabled: false, SSLExpiryDate: int64p(frozen.Add(-3 * 24 * time.Hour).Unix())},
		},
		Alerts: []model.WebsiteAlert{
			{ID: 1},
			{ID: 2, ResolvedAt: int64p(1)},
		},
	})
	c.UpdateSCM(cache.SCM{
		Servers: []model.Server{
			{ID: 1, Hostname: "web", ComplianceStatus: "compliant"},
			{ID: 2, Hostname: "db", ComplianceStatus: "non_compliant", DriftCount: 3},
			{ID: 3, Hostname: "erp", ComplianceStatus: "non_compliant", DriftCount: 5},
			{ID: 4, Hostname: "ci", ComplianceStatus: "unknown"},
		},
		Certificates: []model.Certificate{
			{NotAfter: frozen.Add(30 * 24 * time.Hour).Unix()},
			{NotAfter: frozen.Add(65 * 24 * time.Hour).Unix()},
			{NotAfter: frozen.Add(-10 * 24 * time.Hour).Unix()},
		},
	})
	return c.Snapshot()
}

func TestComputeServiceDesk_MatchesPredicates(t *testing.T) {
	d := sample.Load(frozen)
	got := ComputeServiceDesk(d.Incidents)

	var critical, open, criticalOpen, inProgress, resolved int
	for _, inc := range d.Incidents {
		isOpen := inc.Status != sample.StatusResolved && inc.Status != sample.StatusClosed
		if inc.Priority == sample.PriorityCritical {
			critical++
			if isOpen {
				criticalOpen++
			}
		}
		if isOpen {
			open++
		}
		if inc.Status == sample.StatusInProgress {
			inProgress++
		}
		if inc.Status == sample.StatusResolved {
			resolved++
		}
	}

	assert.Equal(t, len(d.Incidents), got.Total)
	assert.Equal(t, critical, got.Critical)
	assert.Equal(t, open, got.Open)
	assert.Equal(t, criticalOpen, got.CriticalOpen)
	assert.Equal(t, inProgress, got.InProgress)
	assert.Equal(t, resolved, got.Resolved)
	assert.Equal(t, 3, got.Critical)
}

func TestComputeAssets_MatchesPredicates(t *testing.T) {
	d := sample.Load(frozen)
	got := ComputeAssets(d.Assets)

	var inUse, expiring, expired int
	var value float64
	for _, a := range d.Assets {
		if a.Status == "In Use" {
			inUse++
		}
		if a.Status == "Retired" {
			continue
		}
		value += a.Cost
		switch {
		case a.WarrantyDaysLeft < 0:
			expired++
		case a.WarrantyDaysLeft <= WarrantyWindowDays:
			expiring++
		}
	}

	assert.Equal(t, inUse, got.InUse)
	assert.Equal(t, expiring, got.WarrantyExpiring)
	assert.Equal(t, expired, got.WarrantyExpired)
	assert.InDelta(t, value, got.ActiveValue, 0.001)
	assert.Equal(t, 4, got.WarrantyExpiring)
	assert.Equal(t, 1, got.WarrantyExpired)
}

func TestComputeMonitor(t *testing.T) {
	servers := []sample.MonitoredServer{
		{Status: "online", CPUPct: 20},
		{Status: "warning", CPUPct: 70},
		{Status: "critical", CPUPct: 90},
		{Status: "offline", CPUPct: 0},
	}
	got := ComputeMonitor(servers)
	assert.Equal(t, Monitor{Total: 4, Online: 1, Warning: 1, Critical: 1, Offline: 1, AvgCPU: 60}, got)

	assert.Equal(t, Monitor{}, ComputeMonitor(nil))
}

func TestComputeTraining(t *testing.T) {
	courses := []sample.Course{
		{Seats: 10, Enrolled: 10},
		{Seats: 10, Enrolled: 4},
		{Seats: 5, Enrolled: 6},
	}
	got := ComputeTraining(courses)
	assert.Equal(t, Training{Courses: 3, FullyBooked: 2, Enrolled: 20, SeatsLeft: 6}, got)
}

func TestComputeVMAN(t *testing.T) {
	got := ComputeVMAN(testSnapshot())
	assert.Equal(t, 3, got.Hypervisors)
	assert.Equal(t, 1, got.HypervisorsOnline)
	assert.Equal(t, 1, got.HypervisorsAlert)
	assert.Equal(t, 3, got.VMs)
	assert.Equal(t, 2, got.VMsRunning)
	assert.Equal(t, 1, got.VMsCritical)
	assert.Equal(t, 3, got.CloudInstances)
	assert.Equal(t, 2, got.CloudRunning)
	assert.InDelta(t, 464.64, got.MonthlyCloudCost, 0.001)
	assert.Equal(t, 2, got.OpenRecommendations)
	assert.InDelta(t, 53.5, got.EstimatedSavings, 0.001)
}

func TestComputeWPM(t *testing.T) {
	got := ComputeWPM(testSnapshot(), frozen)
	assert.Equal(t, 5, got.Websites)
	assert.Equal(t, 2, got.Up)
	assert.Equal(t, 1, got.Down, "disabled sites are not counted as down")
	assert.Equal(t, 1, got.Degraded)
	assert.Equal(t, 2, got.SSLExpiring)
	assert.Equal(t, 1, got.SSLExpired)
	assert.Equal(t, 1, got.OpenAlerts)
}

func TestComputeSCM(t *testing.T) {
	got := ComputeSCM(testSnapshot(), frozen)
	assert.Equal(t, SCM{
		Servers:              4,
		Compliant:            1,
		NonCompliant:         2,
		TotalDrift:           8,
		CertificatesExpiring: 1,
		CertificatesExpired:  1,
	}, got)
}

func TestCompute_Deterministic(t *testing.T) {
	d := sample.Load(frozen)
	snap := testSnapshot()
	a := Compute(d, snap, frozen)
	b := Compute(d, snap, frozen)
	assert.Equal(t, a, b)
	assert.Equal(t, frozen, a.GeneratedAt)
}

func TestChart_AllNames(t *testing.T) {
	d := sample.Load(frozen)
	snap := testSnapshot()
	for _, name := range ChartNames() {
		t.Run(name, func(t *testing.T) {
			cd, err := Chart(name, d, snap)
			require.NoError(t, err)
			require.NotEmpty(t, cd.Datasets)
			for _, ds := range cd.Datasets {
				assert.Len(t, ds.Data, len(cd.Labels))
			}
		})
	}
}

func TestChart_IncidentsByPriority(t *testing.T) {
	d := sample.Load(frozen)
	cd, err := Chart("incidents-by-priority", d, cache.CacheSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Critical", "High", "Medium", "Low"}, cd.Labels)
	assert.Equal(t, float64(ComputeServiceDesk(d.Incidents).Critical), cd.Datasets[0].Data[0])

	var total float64
	for _, v := range cd.Datasets[0].Data {
		total += v
	}
	assert.Equal(t, float64(len(d.Incidents)), total)
}

func TestChart_CloudCost(t *testing.T) {
	cd, err := Chart("cloud-cost", sample.Load(frozen), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, []float64{69.12, 0, 395.52}, cd.Datasets[0].Data)
}

func TestChart_Unknown(t *testing.T) {
	_, err := Chart("nope", sample.Load(frozen), cache.CacheSnapshot{})
	assert.ErrorIs(t, err, ErrUnknownChart)
}
