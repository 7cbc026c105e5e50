// Package summary computes the headline counts shown on each dashboard.
// Every count is a filter expression evaluated over the page's data, so the
// numbers on the page and the rows behind them cannot disagree.
package summary

import (
	"fmt"
	"math"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/filter"
	"github.com/ioc-platform/ioc/internal/sample"
)

// Windows used by the expiry counts.
const (
	WarrantyWindowDays = 90
	SSLWindow          = 30 * 24 * time.Hour
	CertificateWindow  = 60 * 24 * time.Hour
)

// Static aggregate definitions.
var (
	CriticalIncidents   = filter.MustParse("priority = 'Critical'")
	OpenIncidents       = filter.MustParse("status != 'Resolved' AND status != 'Closed'")
	InProgressIncidents = filter.MustParse("status = 'In Progress'")
	ResolvedIncidents   = filter.MustParse("status = 'Resolved'")
	CriticalOpen        = filter.MustParse("priority = 'Critical' AND status != 'Resolved' AND status != 'Closed'")

	AssetsInUse      = filter.MustParse("status = 'In Use'")
	AssetsActive     = filter.MustParse("status != 'Retired'")
	WarrantyExpiring = filter.MustParse(fmt.Sprintf("warranty_days_left >= 0 AND warranty_days_left <= %d AND status != 'Retired'", WarrantyWindowDays))
	WarrantyExpired  = filter.MustParse("warranty_days_left < 0 AND status != 'Retired'")

	ServersOnline   = filter.MustParse("status = 'online'")
	ServersWarning  = filter.MustParse("status = 'warning'")
	ServersCritical = filter.MustParse("status = 'critical'")
	ServersOffline  = filter.MustParse("status = 'offline'")

	CoursesFull = filter.MustParse("seats_left <= 0")

	HypervisorsOnline = filter.MustParse("status = 'online'")
	HypervisorsAlert  = filter.MustParse("status = 'warning' AND cpu_usage_pct >= 85")
	VMsRunning        = filter.MustParse("power_state = 'running'")
	VMsCritical       = filter.MustParse("health = 'critical'")
	CloudRunning      = filter.MustParse("state = 'running'")
	RecsOpen          = filter.MustParse("status = 'open'")

	SitesUp       = filter.MustParse("last_status = 'up' AND enabled = 'true'")
	SitesDown     = filter.MustParse("last_status = 'down' AND enabled = 'true'")
	SitesDegraded = filter.MustParse("last_status = 'degraded' AND enabled = 'true'")
	AlertsOpen    = filter.MustParse("open = 'true'")

	ServersNonCompliant = filter.MustParse("compliance_status = 'non_compliant'")
	ServersCompliant    = filter.MustParse("compliance_status = 'compliant'")
)

// ServiceDesk summarises incidents.
type ServiceDesk struct {
	Total        int `json:"total"`
	Open         int `json:"open"`
	Critical     int `json:"critical"`
	CriticalOpen int `json:"critical_open"`
	InProgress   int `json:"in_progress"`
	Resolved     int `json:"resolved"`
}

// Assets summarises the asset register.
type Assets struct {
	Total            int     `json:"total"`
	InUse            int     `json:"in_use"`
	WarrantyExpiring int     `json:"warranty_expiring"`
	WarrantyExpired  int     `json:"warranty_expired"`
	ActiveValue      float64 `json:"active_value"`
}

// Monitor summarises the server monitor page.
type Monitor struct {
	Total    int     `json:"total"`
	Online   int     `json:"online"`
	Warning  int     `json:"warning"`
	Critical int     `json:"critical"`
	Offline  int     `json:"offline"`
	AvgCPU   float64 `json:"avg_cpu_pct"`
}

// Training summarises the course catalogue.
type Training struct {
	Courses     int `json:"courses"`
	FullyBooked int `json:"fully_booked"`
	Enrolled    int `json:"enrolled"`
	SeatsLeft   int `json:"seats_left"`
}

// VMAN summarises the virtualization manager.
type VMAN struct {
	Hypervisors         int     `json:"hypervisors"`
	HypervisorsOnline   int     `json:"hypervisors_online"`
	HypervisorsAlert    int     `json:"hypervisors_alert"`
	VMs                 int     `json:"vms"`
	VMsRunning          int     `json:"vms_running"`
	VMsCritical         int     `json:"vms_critical"`
	CloudInstances      int     `json:"cloud_instances"`
	CloudRunning        int     `json:"cloud_running"`
	MonthlyCloudCost    float64 `json:"monthly_cloud_cost"`
	OpenRecommendations int     `json:"open_recommendations"`
	EstimatedSavings    float64 `json:"estimated_savings"`
}

// WPM summarises the web performance monitor.
type WPM struct {
	Websites    int `json:"websites"`
	Up          int `json:"up"`
	Down        int `json:"down"`
	Degraded    int `json:"degraded"`
	SSLExpiring int `json:"ssl_expiring"`
	SSLExpired  int `json:"ssl_expired"`
	OpenAlerts  int `json:"open_alerts"`
}

// SCM summarises the server configuration monitor.
type SCM struct {
	Servers              int `json:"servers"`
	Compliant            int `json:"compliant"`
	NonCompliant         int `json:"non_compliant"`
	TotalDrift           int `json:"total_drift"`
	CertificatesExpiring int `json:"certificates_expiring"`
	CertificatesExpired  int `json:"certificates_expired"`
}

// Overview bundles every dashboard's summary.
type Overview struct {
	GeneratedAt time.Time   `json:"generated_at"`
	ServiceDesk ServiceDesk `json:"service_desk"`
	Assets      Assets      `json:"assets"`
	Monitor     Monitor     `json:"monitor"`
	Training    Training    `json:"training"`
	VMAN        VMAN        `json:"vman"`
	WPM         WPM         `json:"wpm"`
	SCM         SCM         `json:"scm"`
}

// ExpiringBetween returns a query matching records whose field falls in
// [from, to), both as unix seconds.
func ExpiringBetween(field string, from, to time.Time) *filter.Query {
	return filter.MustParse(fmt.Sprintf("%s >= %d AND %s < %d", field, from.Unix(), field, to.Unix()))
}

// ExpiredBefore returns a query matching records whose field is before t.
func ExpiredBefore(field string, t time.Time) *filter.Query {
	return filter.MustParse(fmt.Sprintf("%s < %d", field, t.Unix()))
}

// ComputeServiceDesk summarises incidents.
func ComputeServiceDesk(incidents []sample.Incident) ServiceDesk {
	return ServiceDesk{
		Total:        len(incidents),
		Open:         filter.Count(incidents, OpenIncidents),
		Critical:     filter.Count(incidents, CriticalIncidents),
		CriticalOpen: filter.Count(incidents, CriticalOpen),
		InProgress:   filter.Count(incidents, InProgressIncidents),
		Resolved:     filter.Count(incidents, ResolvedIncidents),
	}
}

// ComputeAssets summarises the asset register.
func ComputeAssets(assets []sample.Asset) Assets {
	return Assets{
		Total:            len(assets),
		InUse:            filter.Count(assets, AssetsInUse),
		WarrantyExpiring: filter.Count(assets, WarrantyExpiring),
		WarrantyExpired:  filter.Count(assets, WarrantyExpired),
		ActiveValue:      filter.Sum(assets, AssetsActive, "cost"),
	}
}

// ComputeMonitor summarises monitored servers. Offline servers are left out
// of the CPU average.
func ComputeMonitor(servers []sample.MonitoredServer) Monitor {
	m := Monitor{
		Total:    len(servers),
		Online:   filter.Count(servers, ServersOnline),
		Warning:  filter.Count(servers, ServersWarning),
		Critical: filter.Count(servers, ServersCritical),
		Offline:  filter.Count(servers, ServersOffline),
	}
	reporting := m.Total - m.Offline
	if reporting > 0 {
		notOffline := filter.MustParse("status != 'offline'")
		m.AvgCPU = round1(filter.Sum(servers, notOffline, "cpu_pct") / float64(reporting))
	}
	return m
}

// ComputeTraining summarises the course catalogue.
func ComputeTraining(courses []sample.Course) Training {
	t := Training{
		Courses:     len(courses),
		FullyBooked: filter.Count(courses, CoursesFull),
		Enrolled:    int(filter.Sum(courses, nil, "enrolled")),
	}
	for _, c := range courses {
		if left := c.SeatsLeft(); left > 0 {
			t.SeatsLeft += left
		}
	}
	return t
}

// ComputeVMAN summarises the virtualization manager snapshot.
func ComputeVMAN(snap cache.CacheSnapshot) VMAN {
	hvs := snap.HypervisorList()
	vms := snap.VMList()
	cloud := snap.CloudList()
	recs := snap.RecommendationList()
	return VMAN{
		Hypervisors:         len(hvs),
		HypervisorsOnline:   filter.Count(hvs, HypervisorsOnline),
		HypervisorsAlert:    filter.Count(hvs, HypervisorsAlert),
		VMs:                 len(vms),
		VMsRunning:          filter.Count(vms, VMsRunning),
		VMsCritical:         filter.Count(vms, VMsCritical),
		CloudInstances:      len(cloud),
		CloudRunning:        filter.Count(cloud, CloudRunning),
		MonthlyCloudCost:    round2(filter.Sum(cloud, nil, "monthly_cost")),
		OpenRecommendations: filter.Count(recs, RecsOpen),
		EstimatedSavings:    round2(filter.Sum(recs, RecsOpen, "estimated_savings")),
	}
}

// ComputeWPM summarises the web performance snapshot.
func ComputeWPM(snap cache.CacheSnapshot, now time.Time) WPM {
	sites := snap.WebsiteList()
	return WPM{
		Websites:    len(sites),
		Up:          filter.Count(sites, SitesUp),
		Down:        filter.Count(sites, SitesDown),
		Degraded:    filter.Count(sites, SitesDegraded),
		SSLExpiring: filter.Count(sites, ExpiringBetween("ssl_expiry_date", now, now.Add(SSLWindow))),
		SSLExpired:  filter.Count(sites, ExpiredBefore("ssl_expiry_date", now)),
		OpenAlerts:  filter.Count(snap.WebsiteAlertList(), AlertsOpen),
	}
}

// ComputeSCM summarises the server configuration snapshot.
func ComputeSCM(snap cache.CacheSnapshot, now time.Time) SCM {
	servers := snap.ServerList()
	certs := snap.CertificateList()
	return SCM{
		Servers:              len(servers),
		Compliant:            filter.Count(servers, ServersCompliant),
		NonCompliant:         filter.Count(servers, ServersNonCompliant),
		TotalDrift:           int(filter.Sum(servers, nil, "drift_count")),
		CertificatesExpiring: filter.Count(certs, ExpiringBetween("not_after", now, now.Add(CertificateWindow))),
		CertificatesExpired:  filter.Count(certs, ExpiredBefore("not_after", now)),
	}
}

// Compute builds the full overview.
func Compute(d *sample.Data, snap cache.CacheSnapshot, now time.Time) Overview {
	return Overview{
		GeneratedAt: now,
		ServiceDesk: ComputeServiceDesk(d.Incidents),
		Assets:      ComputeAssets(d.Assets),
		Monitor:     ComputeMonitor(d.Servers),
		Training:    ComputeTraining(d.Courses),
		VMAN:        ComputeVMAN(snap),
		WPM:         ComputeWPM(snap, now),
		SCM:         ComputeSCM(snap, now),
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
