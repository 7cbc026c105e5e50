package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/ioc-platform/ioc/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestNew(t *testing.T) {
	c := New()
	assert.NotNil(t, c.Hypervisors)
	assert.NotNil(t, c.VMs)
	assert.NotNil(t, c.Websites)
	assert.NotNil(t, c.Servers)
	assert.NotNil(t, c.LastPoll)
}

func TestUpdateVMAN(t *testing.T) {
	c := New()
	c.UpdateVMAN(VMAN{
		Hypervisors: []model.Hypervisor{
			{ID: 2, Name: "esx-prod-02", Status: "warning"},
			{ID: 1, Name: "esx-prod-01", Status: "online"},
		},
		VMs: []model.VirtualMachine{
			{ID: 10, Name: "web-prod-01", HypervisorID: int64p(1), Tags: map[string]string{"env": "production"}},
		},
		CloudInstances:  []model.CloudInstance{{ID: 1, Name: "api-gateway-aws"}},
		Recommendations: []model.Recommendation{{ID: 1, Title: "Downsize"}},
		Snapshots:       []model.Snapshot{{ID: 1, Name: "nightly"}},
		Datastores:      []model.Datastore{{ID: 1, Name: "ds-prod-vmfs-01"}},
	})

	snap := c.Snapshot()
	assert.Len(t, snap.Hypervisors, 2)
	assert.Equal(t, "warning", snap.Hypervisors[2].Status)
	assert.Equal(t, "production", snap.VMs[10].Tags["env"])
	assert.Len(t, snap.CloudInstances, 1)
	assert.Len(t, snap.Recommendations, 1)
	assert.Len(t, snap.Snapshots, 1)
	assert.Len(t, snap.Datastores, 1)

	list := snap.HypervisorList()
	require.Len(t, list, 2)
	assert.Equal(t, "esx-prod-01", list[0].Name)
}

func TestUpdateWPM(t *testing.T) {
	c := New()
	c.UpdateWPM(WPM{
		Websites:     []model.Website{{ID: 1, Name: "Portal", LastStatus: model.SiteUp}},
		Transactions: []model.Transaction{{ID: 1, Name: "Login", Steps: []model.TransactionStep{{StepOrder: 1}}}},
		Alerts:       []model.WebsiteAlert{{ID: 1, AlertType: "down"}},
	})

	snap := c.Snapshot()
	assert.Equal(t, "Portal", snap.Websites[1].Name)
	require.Len(t, snap.Transactions, 1)
	assert.Len(t, snap.Transactions[0].Steps, 1)
	assert.Len(t, snap.WebsiteAlertList(), 1)
}

func TestUpdateSCM(t *testing.T) {
	c := New()
	c.UpdateSCM(SCM{
		Servers:      []model.Server{{ID: 3, Hostname: "db-prod-01"}, {ID: 1, Hostname: "app-stage-01"}},
		Certificates: []model.Certificate{{ID: 1, Subject: "CN=x"}},
	})

	snap := c.Snapshot()
	servers := snap.ServerList()
	require.Len(t, servers, 2)
	assert.Equal(t, "app-stage-01", servers[0].Hostname)
	assert.Len(t, snap.CertificateList(), 1)
}

func TestUpdateWebsiteCheck(t *testing.T) {
	c := New()
	c.UpdateWPM(WPM{Websites: []model.Website{{ID: 1, Name: "Portal", LastStatus: model.SiteUnknown}}})

	c.UpdateWebsiteCheck(model.WebsiteCheck{WebsiteID: 1, CheckedAt: 1000, Status: model.SiteDown, ResponseMS: 0})
	c.UpdateWebsiteCheck(model.WebsiteCheck{WebsiteID: 99, Status: model.SiteUp})

	snap := c.Snapshot()
	assert.Equal(t, model.SiteDown, snap.Websites[1].LastStatus)
	assert.Equal(t, int64(1000), snap.Websites[1].LastChecked)
	assert.Len(t, snap.Websites, 1)
}

func TestUpdateWebsiteTLS(t *testing.T) {
	c := New()
	c.UpdateWPM(WPM{Websites: []model.Website{{ID: 1}}})
	c.UpdateWebsiteTLS(1, 5000, "R3")

	snap := c.Snapshot()
	require.NotNil(t, snap.Websites[1].SSLExpiryDate)
	assert.Equal(t, int64(5000), *snap.Websites[1].SSLExpiryDate)
	assert.Equal(t, "R3", snap.Websites[1].SSLIssuer)

	// Should not panic for unknown sites.
	c.UpdateWebsiteTLS(42, 1, "x")
}

func TestUpdateServer(t *testing.T) {
	c := New()
	c.UpdateSCM(SCM{Servers: []model.Server{{ID: 1, Hostname: "web", DriftCount: 0}}})
	c.UpdateServer(model.Server{ID: 1, Hostname: "web", DriftCount: 2, ComplianceStatus: model.NonCompliant})

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Servers[1].DriftCount)
	assert.Equal(t, model.NonCompliant, snap.Servers[1].ComplianceStatus)
}

func TestSetLastPoll(t *testing.T) {
	c := New()
	now := time.Now()
	c.SetLastPoll("loader", now)

	snap := c.Snapshot()
	assert.Equal(t, now, snap.LastPoll["loader"])
}

func TestSnapshotIsIndependent(t *testing.T) {
	c := New()
	c.UpdateVMAN(VMAN{Hypervisors: []model.Hypervisor{{ID: 1, Name: "esx", CPUUsagePct: 10}}})

	snap := c.Snapshot()

	// Mutate the cache after taking the snapshot.
	c.UpdateVMAN(VMAN{Hypervisors: []model.Hypervisor{
		{ID: 1, Name: "esx", CPUUsagePct: 99},
		{ID: 2, Name: "kvm", CPUUsagePct: 50},
	}})

	// Snapshot must be unchanged.
	assert.Len(t, snap.Hypervisors, 1)
	assert.Equal(t, 10.0, snap.Hypervisors[1].CPUUsagePct)
}

func TestSnapshotDeepCopy(t *testing.T) {
	c := New()
	c.UpdateVMAN(VMAN{VMs: []model.VirtualMachine{
		{ID: 1, HypervisorID: int64p(7), Tags: map[string]string{"env": "production"}},
	}})
	c.UpdateWPM(WPM{
		Websites:     []model.Website{{ID: 1, SSLExpiryDate: int64p(100)}},
		Transactions: []model.Transaction{{ID: 1, Steps: []model.TransactionStep{{Name: "open"}}}},
		Alerts:       []model.WebsiteAlert{{ID: 1, ResolvedAt: int64p(5)}},
	})

	snap := c.Snapshot()

	c.mu.Lock()
	c.VMs[1].Tags["env"] = "staging"
	*c.VMs[1].HypervisorID = 8
	*c.Websites[1].SSLExpiryDate = 200
	c.Transactions[0].Steps[0].Name = "changed"
	*c.WebsiteAlerts[0].ResolvedAt = 6
	c.mu.Unlock()

	assert.Equal(t, "production", snap.VMs[1].Tags["env"])
	assert.Equal(t, int64(7), *snap.VMs[1].HypervisorID)
	assert.Equal(t, int64(100), *snap.Websites[1].SSLExpiryDate)
	assert.Equal(t, "open", snap.Transactions[0].Steps[0].Name)
	assert.Equal(t, int64(5), *snap.WebsiteAlerts[0].ResolvedAt)
}

func TestConcurrentReadWrite(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	// Writers
	for i := range 10 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.UpdateVMAN(VMAN{Hypervisors: []model.Hypervisor{{ID: 1, CPUUsagePct: float64(n)}}})
			c.UpdateWPM(WPM{Websites: []model.Website{{ID: int64(n)}}})
			c.UpdateWebsiteCheck(model.WebsiteCheck{WebsiteID: int64(n), Status: model.SiteUp})
			c.SetLastPoll("writer", time.Now())
		}(i)
	}

	// Readers
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := c.Snapshot()
			// Just access fields to trigger any race.
			_ = len(snap.Hypervisors)
			_ = len(snap.WebsiteList())
			_ = len(snap.LastPoll)
		}()
	}

	wg.Wait()
}
