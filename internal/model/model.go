// Package model defines all shared domain types for the IOC.
package model

import "time"

// Hypervisor status values.
const (
	HypervisorOnline      = "online"
	HypervisorOffline     = "offline"
	HypervisorMaintenance = "maintenance"
	HypervisorWarning     = "warning"
)

// Hypervisor is a virtualization host tracked by the virtualization manager.
type Hypervisor struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Host           string  `json:"host"`
	Platform       string  `json:"platform"` // "vmware", "hyperv", "kvm", "proxmox", "xen"
	Version        string  `json:"version"`
	CPUCores       int     `json:"cpu_cores"`
	CPUUsagePct    float64 `json:"cpu_usage_pct"`
	MemoryTotalMB  int64   `json:"memory_total_mb"`
	MemoryUsedMB   int64   `json:"memory_used_mb"`
	StorageTotalGB int64   `json:"storage_total_gb"`
	StorageUsedGB  int64   `json:"storage_used_gb"`
	VMCount        int     `json:"vm_count"`
	Status         string  `json:"status"`
	LastSeen       int64   `json:"last_seen"`
}

// MemoryPct returns memory usage as a 0-100 percentage.
func (h Hypervisor) MemoryPct() float64 {
	if h.MemoryTotalMB == 0 {
		return 0
	}
	return float64(h.MemoryUsedMB) / float64(h.MemoryTotalMB) * 100
}

// VM power states.
const (
	PowerRunning   = "running"
	PowerStopped   = "stopped"
	PowerSuspended = "suspended"
)

// VirtualMachine belongs to a hypervisor. HypervisorID is nil once the
// hypervisor row has been deleted.
type VirtualMachine struct {
	ID             int64             `json:"id"`
	UUID           string            `json:"uuid"`
	Name           string            `json:"name"`
	HypervisorID   *int64            `json:"hypervisor_id,omitempty"`
	GuestOS        string            `json:"guest_os"`
	VCPUs          int               `json:"vcpus"`
	MemoryMB       int64             `json:"memory_mb"`
	DiskGB         int64             `json:"disk_gb"`
	CPUUsagePct    float64           `json:"cpu_usage_pct"`
	MemoryUsagePct float64           `json:"memory_usage_pct"`
	PowerState     string            `json:"power_state"`
	Health         string            `json:"health"` // "healthy", "warning", "critical"
	IPAddress      string            `json:"ip_address"`
	Tags           map[string]string `json:"tags,omitempty"`
	CreatedAt      int64             `json:"created_at"`
}

// CloudInstance is a public cloud VM tracked alongside on-prem guests.
type CloudInstance struct {
	ID           int64   `json:"id"`
	UUID         string  `json:"uuid"`
	Provider     string  `json:"provider"` // "aws", "azure", "gcp"
	InstanceID   string  `json:"instance_id"`
	Name         string  `json:"name"`
	Region       string  `json:"region"`
	InstanceType string  `json:"instance_type"`
	State        string  `json:"state"` // "running", "stopped", "terminated"
	MonthlyCost  float64 `json:"monthly_cost"`
	CPUUsagePct  float64 `json:"cpu_usage_pct"`
	LaunchedAt   int64   `json:"launched_at"`
}

// Recommendation is a capacity or cost optimisation suggestion.
type Recommendation struct {
	ID               int64   `json:"id"`
	TargetType       string  `json:"target_type"` // "vm", "hypervisor", "cloud"
	TargetName       string  `json:"target_name"`
	Category         string  `json:"category"` // "rightsizing", "idle", "snapshot", "capacity"
	Title            string  `json:"title"`
	Detail           string  `json:"detail"`
	EstimatedSavings float64 `json:"estimated_savings"`
	Severity         string  `json:"severity"` // "low", "medium", "high"
	Status           string  `json:"status"`   // "open", "applied", "dismissed"
}

// Snapshot is a point-in-time VM snapshot.
type Snapshot struct {
	ID          int64   `json:"id"`
	VMID        int64   `json:"vm_id"`
	VMName      string  `json:"vm_name,omitempty"`
	Name        string  `json:"name"`
	SizeGB      float64 `json:"size_gb"`
	CreatedAt   int64   `json:"created_at"`
	Description string  `json:"description"`
}

// Datastore is storage attached to a hypervisor.
type Datastore struct {
	ID           int64  `json:"id"`
	HypervisorID int64  `json:"hypervisor_id"`
	Name         string `json:"name"`
	Type         string `json:"type"` // "vmfs", "nfs", "vsan", "local"
	CapacityGB   int64  `json:"capacity_gb"`
	UsedGB       int64  `json:"used_gb"`
}

// Website status values.
const (
	SiteUp       = "up"
	SiteDown     = "down"
	SiteDegraded = "degraded"
	SiteUnknown  = "unknown"
)

// Website is a URL watched by the web performance monitor.
type Website struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	URL               string `json:"url"`
	CheckIntervalSecs int    `json:"check_interval_secs"`
	LastStatus        string `json:"last_status"`
	LastResponseMS    int64  `json:"last_response_ms"`
	LastChecked       int64  `json:"last_checked"`
	SSLExpiryDate     *int64 `json:"ssl_expiry_date,omitempty"`
	SSLIssuer         string `json:"ssl_issuer,omitempty"`
	Enabled           bool   `json:"enabled"`
}

// WebsiteCheck is a single probe result.
type WebsiteCheck struct {
	ID         int64  `json:"id"`
	WebsiteID  int64  `json:"website_id"`
	CheckedAt  int64  `json:"checked_at"`
	Status     string `json:"status"`
	ResponseMS int64  `json:"response_ms"`
	HTTPStatus int    `json:"http_status"`
	Error      string `json:"error,omitempty"`
}

// Transaction is a scripted multi-step user journey against a website.
type Transaction struct {
	ID             int64             `json:"id"`
	WebsiteID      int64             `json:"website_id"`
	Name           string            `json:"name"`
	LastStatus     string            `json:"last_status"`
	LastDurationMS int64             `json:"last_duration_ms"`
	Steps          []TransactionStep `json:"steps,omitempty"`
}

// TransactionStep is one action of a transaction.
type TransactionStep struct {
	ID             int64  `json:"id"`
	TransactionID  int64  `json:"transaction_id"`
	StepOrder      int    `json:"step_order"`
	Name           string `json:"name"`
	Action         string `json:"action"` // "navigate", "click", "fill", "assert"
	Target         string `json:"target"`
	LastDurationMS int64  `json:"last_duration_ms"`
}

// WebsiteAlert is a persisted WPM alert.
type WebsiteAlert struct {
	ID         int64  `json:"id"`
	WebsiteID  int64  `json:"website_id"`
	AlertType  string `json:"alert_type"` // "down", "slow", "ssl_expiry"
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	CreatedAt  int64  `json:"created_at"`
	ResolvedAt *int64 `json:"resolved_at,omitempty"`
}

// Compliance values for servers.
const (
	Compliant    = "compliant"
	NonCompliant = "non_compliant"
	Unknown      = "unknown"
)

// Server is a host tracked by the server configuration monitor.
type Server struct {
	ID               int64  `json:"id"`
	Hostname         string `json:"hostname"`
	IPAddress        string `json:"ip_address"`
	OSName           string `json:"os_name"`
	OSVersion        string `json:"os_version"`
	Platform         string `json:"platform"`    // "linux", "windows"
	Environment      string `json:"environment"` // "production", "staging", "development"
	ComplianceStatus string `json:"compliance_status"`
	DriftCount       int    `json:"drift_count"`
	LastScan         int64  `json:"last_scan"`
}

// ConfigChange records a detected configuration change on a server.
type ConfigChange struct {
	ID        int64  `json:"id"`
	ServerID  int64  `json:"server_id"`
	ChangedAt int64  `json:"changed_at"`
	Category  string `json:"category"` // "package", "service", "file", "user", "registry"
	Item      string `json:"item"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	ChangedBy string `json:"changed_by"`
}

// File integrity statuses.
const (
	IntegrityUnchanged = "unchanged"
	IntegrityModified  = "modified"
	IntegrityMissing   = "missing"
	IntegrityNew       = "new"
)

// FileIntegrity is the last verified hash of a watched file.
type FileIntegrity struct {
	ID           int64  `json:"id"`
	ServerID     int64  `json:"server_id"`
	Path         string `json:"path"`
	SHA256       string `json:"sha256"`
	LastVerified int64  `json:"last_verified"`
	Status       string `json:"status"`
}

// Certificate is an X.509 certificate installed on a server.
type Certificate struct {
	ID           int64  `json:"id"`
	ServerID     int64  `json:"server_id"`
	Subject      string `json:"subject"`
	Issuer       string `json:"issuer"`
	Serial       string `json:"serial"`
	NotBefore    int64  `json:"not_before"`
	NotAfter     int64  `json:"not_after"`
	KeyAlgorithm string `json:"key_algorithm"`
}

// FirewallRule is a host firewall rule.
type FirewallRule struct {
	ID        int64  `json:"id"`
	ServerID  int64  `json:"server_id"`
	RuleName  string `json:"rule_name"`
	Direction string `json:"direction"` // "inbound", "outbound"
	Action    string `json:"action"`    // "allow", "deny"
	Protocol  string `json:"protocol"`
	Port      string `json:"port"`
	Source    string `json:"source"`
	Enabled   bool   `json:"enabled"`
}

// ScheduledTask is a cron job or Windows scheduled task.
type ScheduledTask struct {
	ID         int64  `json:"id"`
	ServerID   int64  `json:"server_id"`
	Name       string `json:"name"`
	Schedule   string `json:"schedule"`
	Command    string `json:"command"`
	RunAs      string `json:"run_as"`
	LastRun    *int64 `json:"last_run,omitempty"`
	LastResult string `json:"last_result"` // "success", "failure", "never"
}

// InstalledSoftware is a package present on a server.
type InstalledSoftware struct {
	ID          int64  `json:"id"`
	ServerID    int64  `json:"server_id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Vendor      string `json:"vendor"`
	InstalledAt int64  `json:"installed_at"`
}

// ServerDetail bundles a server with all of its audit child rows.
type ServerDetail struct {
	Server        Server              `json:"server"`
	Changes       []ConfigChange      `json:"config_changes"`
	Files         []FileIntegrity     `json:"file_integrity"`
	Certificates  []Certificate       `json:"certificates"`
	FirewallRules []FirewallRule      `json:"firewall_rules"`
	Tasks         []ScheduledTask     `json:"scheduled_tasks"`
	Software      []InstalledSoftware `json:"installed_software"`
}

// SeriesPoint is a single data point of a time series.
type SeriesPoint struct {
	Timestamp int64   `json:"ts"`
	Value     float64 `json:"value"`
}

// AlertRecord is a row of the alert log.
type AlertRecord struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"ts"`
	AlertType string `json:"alert_type"`
	Source    string `json:"source"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

// AuditRecord is a row of the operator audit log.
type AuditRecord struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"ts"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// Notification represents a structured alert message.
type Notification struct {
	AlertType string            `json:"alert_type"`
	Severity  string            `json:"severity"` // "info", "warning", "critical"
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Source    string            `json:"source"` // "vman", "wpm", "scm", "rail"
	Subject   string            `json:"subject"`
	Timestamp time.Time         `json:"timestamp"`
	Resolved  bool              `json:"resolved"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
