// Package templates holds the templ components for every IOC page along with
// the view models they render and the embedded static assets. The *.templ
// files are the source; run `templ generate` after editing them.
package templates

import (
	"embed"
	"io/fs"
	"time"

	"github.com/ioc-platform/ioc/internal/docs"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/sample"
	"github.com/ioc-platform/ioc/internal/summary"
)

//go:embed static
var staticFiles embed.FS

// Static returns the embedded stylesheet and scripts, rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Nav is the navigation bar entry list.
var Nav = []struct {
	Path, Label string
}{
	{"/", "Overview"},
	{"/vman", "Virtualization"},
	{"/wpm", "Web Performance"},
	{"/scm", "Configuration"},
	{"/servicedesk", "Service Desk"},
	{"/assets", "Assets"},
	{"/monitor", "Server Monitor"},
	{"/scada", "SCADA"},
	{"/training", "Training"},
}

// Page carries what every page's layout needs.
type Page struct {
	Title     string
	Active    string
	Site      docs.Site
	Now       time.Time
	LastPoll  map[string]time.Time
	Documents []docs.Entry
}

// OverviewData is the landing page.
type OverviewData struct {
	Page
	Summary summary.Overview
	Alerts  []model.AlertRecord
}

// VMANData is the virtualization manager page.
type VMANData struct {
	Page
	Summary         summary.VMAN
	Hypervisors     []model.Hypervisor
	VMs             []model.VirtualMachine
	CloudInstances  []model.CloudInstance
	Recommendations []model.Recommendation
	Snapshots       []model.Snapshot
	Datastores      []model.Datastore
	// HypervisorNames maps hypervisor IDs to names for the VM table.
	HypervisorNames map[int64]string
}

// WebsiteRow is a website with its recent response series.
type WebsiteRow struct {
	model.Website
	Series []model.SeriesPoint
}

// WPMData is the web performance monitor page.
type WPMData struct {
	Page
	Summary      summary.WPM
	Websites     []WebsiteRow
	Transactions []model.Transaction
	Alerts       []model.WebsiteAlert
}

// SCMData is the server configuration monitor page.
type SCMData struct {
	Page
	Summary      summary.SCM
	Servers      []model.Server
	Certificates []model.Certificate
}

// ServerData is a single SCM server with its audit rows.
type ServerData struct {
	Page
	Detail *model.ServerDetail
}

// ServiceDeskData is the incident list.
type ServiceDeskData struct {
	Page
	Summary     summary.ServiceDesk
	Incidents   []sample.Incident
	Filter      string
	FilterError string
}

// AssetsData is the asset register.
type AssetsData struct {
	Page
	Summary     summary.Assets
	Assets      []sample.Asset
	Filter      string
	FilterError string
}

// MonitorData is the server monitor page.
type MonitorData struct {
	Page
	Summary summary.Monitor
	Servers []sample.MonitoredServer
}

// TrainingData is the training centre page.
type TrainingData struct {
	Page
	Summary summary.Training
	Courses []sample.Course
}

// SCADAData is the rail HMI page.
type SCADAData struct {
	Page
	Enabled       bool
	State         rail.State
	TokenRequired bool
}

// DocumentData is a rendered brochure or review.
type DocumentData struct {
	Page
	Doc *docs.Document
}

// ErrorData is shown for 404 and 500 pages.
type ErrorData struct {
	Page
	Status  int
	Message string
}
