package cache

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ioc-platform/ioc/internal/model"
)

// Cache is a thread-safe in-memory copy of the domain data served to the
// dashboards.
type Cache struct {
	mu sync.RWMutex

	Hypervisors     map[int64]*model.Hypervisor
	VMs             map[int64]*model.VirtualMachine
	CloudInstances  []*model.CloudInstance
	Recommendations []*model.Recommendation
	Snapshots       []*model.Snapshot
	Datastores      []*model.Datastore
	Websites        map[int64]*model.Website
	Transactions    []*model.Transaction
	WebsiteAlerts   []*model.WebsiteAlert
	Servers         map[int64]*model.Server
	Certificates    []*model.Certificate
	LastPoll        map[string]time.Time
}

// CacheSnapshot is a read-only deep copy of the cache state.
type CacheSnapshot struct {
	Hypervisors     map[int64]*model.Hypervisor
	VMs             map[int64]*model.VirtualMachine
	CloudInstances  []*model.CloudInstance
	Recommendations []*model.Recommendation
	Snapshots       []*model.Snapshot
	Datastores      []*model.Datastore
	Websites        map[int64]*model.Website
	Transactions    []*model.Transaction
	WebsiteAlerts   []*model.WebsiteAlert
	Servers         map[int64]*model.Server
	Certificates    []*model.Certificate
	LastPoll        map[string]time.Time
}

// New returns an initialized Cache.
func New() *Cache {
	return &Cache{
		Hypervisors: make(map[int64]*model.Hypervisor),
		VMs:         make(map[int64]*model.VirtualMachine),
		Websites:    make(map[int64]*model.Website),
		Servers:     make(map[int64]*model.Server),
		LastPoll:    make(map[string]time.Time),
	}
}

func copyPtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](in []*T, deep func(*T)) []*T {
	if in == nil {
		return nil
	}
	out := make([]*T, len(in))
	for i, v := range in {
		cp := *v
		if deep != nil {
			deep(&cp)
		}
		out[i] = &cp
	}
	return out
}

// Snapshot returns a deep copy of the cache contents.
func (c *Cache) Snapshot() CacheSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := CacheSnapshot{
		Hypervisors: make(map[int64]*model.Hypervisor, len(c.Hypervisors)),
		VMs:         make(map[int64]*model.VirtualMachine, len(c.VMs)),
		Websites:    make(map[int64]*model.Website, len(c.Websites)),
		Servers:     make(map[int64]*model.Server, len(c.Servers)),
		LastPoll:    make(map[string]time.Time, len(c.LastPoll)),
	}

	for id, h := range c.Hypervisors {
		cp := *h
		snap.Hypervisors[id] = &cp
	}

	for id, vm := range c.VMs {
		cp := *vm
		cp.HypervisorID = copyPtr(vm.HypervisorID)
		if vm.Tags != nil {
			cp.Tags = maps.Clone(vm.Tags)
		}
		snap.VMs[id] = &cp
	}

	for id, w := range c.Websites {
		cp := *w
		cp.SSLExpiryDate = copyPtr(w.SSLExpiryDate)
		snap.Websites[id] = &cp
	}

	for id, s := range c.Servers {
		cp := *s
		snap.Servers[id] = &cp
	}

	snap.CloudInstances = cloneSlice(c.CloudInstances, nil)
	snap.Recommendations = cloneSlice(c.Recommendations, nil)
	snap.Snapshots = cloneSlice(c.Snapshots, nil)
	snap.Datastores = cloneSlice(c.Datastores, nil)
	snap.Certificates = cloneSlice(c.Certificates, nil)
	snap.Transactions = cloneSlice(c.Transactions, func(tx *model.Transaction) {
		if tx.Steps != nil {
			tx.Steps = slices.Clone(tx.Steps)
		}
	})
	snap.WebsiteAlerts = cloneSlice(c.WebsiteAlerts, func(a *model.WebsiteAlert) {
		a.ResolvedAt = copyPtr(a.ResolvedAt)
	})

	maps.Copy(snap.LastPoll, c.LastPoll)

	return snap
}

// VMAN is one refresh of the virtualization manager tables.
type VMAN struct {
	Hypervisors     []model.Hypervisor
	VMs             []model.VirtualMachine
	CloudInstances  []model.CloudInstance
	Recommendations []model.Recommendation
	Snapshots       []model.Snapshot
	Datastores      []model.Datastore
}

// WPM is one refresh of the web performance monitor tables.
type WPM struct {
	Websites     []model.Website
	Transactions []model.Transaction
	Alerts       []model.WebsiteAlert
}

// SCM is one refresh of the server configuration monitor tables.
type SCM struct {
	Servers      []model.Server
	Certificates []model.Certificate
}

func ptrs[T any](in []T) []*T {
	out := make([]*T, len(in))
	for i := range in {
		out[i] = &in[i]
	}
	return out
}

// UpdateVMAN replaces all virtualization data.
func (c *Cache) UpdateVMAN(d VMAN) {
	hvs := make(map[int64]*model.Hypervisor, len(d.Hypervisors))
	for i := range d.Hypervisors {
		hvs[d.Hypervisors[i].ID] = &d.Hypervisors[i]
	}
	vms := make(map[int64]*model.VirtualMachine, len(d.VMs))
	for i := range d.VMs {
		vms[d.VMs[i].ID] = &d.VMs[i]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Hypervisors = hvs
	c.VMs = vms
	c.CloudInstances = ptrs(d.CloudInstances)
	c.Recommendations = ptrs(d.Recommendations)
	c.Snapshots = ptrs(d.Snapshots)
	c.Datastores = ptrs(d.Datastores)
}

// UpdateWPM replaces all web performance data.
func (c *Cache) UpdateWPM(d WPM) {
	sites := make(map[int64]*model.Website, len(d.Websites))
	for i := range d.Websites {
		sites[d.Websites[i].ID] = &d.Websites[i]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Websites = sites
	c.Transactions = ptrs(d.Transactions)
	c.WebsiteAlerts = ptrs(d.Alerts)
}

// UpdateSCM replaces all server configuration data.
func (c *Cache) UpdateSCM(d SCM) {
	servers := make(map[int64]*model.Server, len(d.Servers))
	for i := range d.Servers {
		servers[d.Servers[i].ID] = &d.Servers[i]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Servers = servers
	c.Certificates = ptrs(d.Certificates)
}

// UpdateWebsiteCheck applies a probe result to a cached website. Unknown
// websites are ignored; the next refresh picks them up.
func (c *Cache) UpdateWebsiteCheck(check model.WebsiteCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.Websites[check.WebsiteID]; ok {
		w.LastStatus = check.Status
		w.LastResponseMS = check.ResponseMS
		w.LastChecked = check.CheckedAt
	}
}

// UpdateWebsiteTLS records the certificate expiry observed by a probe.
func (c *Cache) UpdateWebsiteTLS(websiteID, expiry int64, issuer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.Websites[websiteID]; ok {
		w.SSLExpiryDate = &expiry
		w.SSLIssuer = issuer
	}
}

// UpdateServer replaces a single cached server, e.g. after an integrity scan.
func (c *Cache) UpdateServer(s model.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Servers[s.ID] = &s
}

// SetLastPoll records the last poll time for a collector.
func (c *Cache) SetLastPoll(collectorID string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastPoll[collectorID] = t
}

func sortedValues[T any](m map[int64]*T, less func(a, b *T) int) []T {
	vals := slices.Collect(maps.Values(m))
	slices.SortFunc(vals, less)
	out := make([]T, len(vals))
	for i, v := range vals {
		out[i] = *v
	}
	return out
}

func values[T any](in []*T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = *v
	}
	return out
}

// HypervisorList returns the hypervisors sorted by name.
func (s CacheSnapshot) HypervisorList() []model.Hypervisor {
	return sortedValues(s.Hypervisors, func(a, b *model.Hypervisor) int { return strings.Compare(a.Name, b.Name) })
}

// VMList returns the virtual machines sorted by name.
func (s CacheSnapshot) VMList() []model.VirtualMachine {
	return sortedValues(s.VMs, func(a, b *model.VirtualMachine) int { return strings.Compare(a.Name, b.Name) })
}

// WebsiteList returns the websites sorted by name.
func (s CacheSnapshot) WebsiteList() []model.Website {
	return sortedValues(s.Websites, func(a, b *model.Website) int { return strings.Compare(a.Name, b.Name) })
}

// ServerList returns the servers sorted by hostname.
func (s CacheSnapshot) ServerList() []model.Server {
	return sortedValues(s.Servers, func(a, b *model.Server) int { return strings.Compare(a.Hostname, b.Hostname) })
}

// CloudList returns the cloud instances in load order.
func (s CacheSnapshot) CloudList() []model.CloudInstance { return values(s.CloudInstances) }

// RecommendationList returns the recommendations in load order.
func (s CacheSnapshot) RecommendationList() []model.Recommendation {
	return values(s.Recommendations)
}

// WebsiteAlertList returns the WPM alerts in load order.
func (s CacheSnapshot) WebsiteAlertList() []model.WebsiteAlert { return values(s.WebsiteAlerts) }

// CertificateList returns the server certificates in load order.
func (s CacheSnapshot) CertificateList() []model.Certificate { return values(s.Certificates) }
