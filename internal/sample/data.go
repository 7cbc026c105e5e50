package sample

import "time"

type incidentRow struct {
	id, title, priority, status, assignee, category string
	openedAgo                                       time.Duration
}

var incidentRows = []incidentRow{
	{"INC-10421", "Core switch CS-01 port flapping", PriorityCritical, StatusOpen, "N. Okafor", "Network", 2 * time.Hour},
	{"INC-10422", "Payments API returning 503", PriorityCritical, StatusInProgress, "R. Patel", "Application", 3 * time.Hour},
	{"INC-10418", "Email delivery delayed for finance", PriorityHigh, StatusInProgress, "J. Smith", "Email", 20 * time.Hour},
	{"INC-10415", "VPN concentrator high CPU", PriorityHigh, StatusOpen, "N. Okafor", "Network", 26 * time.Hour},
	{"INC-10410", "Printer queue stuck on floor 3", PriorityLow, StatusOpen, "A. Chen", "Hardware", 2 * day},
	{"INC-10407", "New starter laptop build", PriorityMedium, StatusInProgress, "A. Chen", "Hardware", 3 * day},
	{"INC-10402", "SSL certificate expired on booking site", PriorityCritical, StatusResolved, "R. Patel", "Security", 3 * day},
	{"INC-10398", "Shared drive permissions request", PriorityLow, StatusClosed, "J. Smith", "Access", 5 * day},
	{"INC-10391", "ERP month end job failed", PriorityHigh, StatusResolved, "M. Garcia", "Application", 6 * day},
	{"INC-10385", "Backup job exceeded window", PriorityMedium, StatusOpen, "M. Garcia", "Storage", 7 * day},
	{"INC-10377", "Phishing email reported by HR", PriorityHigh, StatusClosed, "S. Ivanova", "Security", 9 * day},
	{"INC-10360", "Meeting room display not detected", PriorityLow, StatusClosed, "A. Chen", "Hardware", 14 * day},
}

type assetRow struct {
	tag, name, kind, location, owner, status string
	cost                                     float64
	purchasedAgo                             time.Duration
	warrantyYears                            int
}

var assetRows = []assetRow{
	{"AST-0001", "Dell PowerEdge R750", "Server", "DC1 Rack A3", "Infrastructure", "In Use", 18450, 400 * day, 5},
	{"AST-0002", "Dell PowerEdge R740", "Server", "DC1 Rack A4", "Infrastructure", "In Use", 15200, 1065 * day, 3},
	{"AST-0003", "Cisco Catalyst 9300", "Network", "DC1 Rack B1", "Network", "In Use", 9800, 1785 * day, 5},
	{"AST-0004", "NetApp AFF A250", "Storage", "DC2 Rack C2", "Infrastructure", "In Use", 42000, 1040 * day, 3},
	{"AST-0005", "Fortinet FortiGate 200F", "Network", "DC1 Rack B2", "Security", "In Use", 7600, 700 * day, 3},
	{"AST-0006", "Lenovo ThinkPad T14", "Laptop", "HQ Floor 2", "J. Smith", "In Use", 1350, 200 * day, 3},
	{"AST-0007", "Lenovo ThinkPad T14", "Laptop", "Store Room", "IT Service Desk", "In Stock", 1350, 30 * day, 3},
	{"AST-0008", "HP LaserJet M609", "Printer", "HQ Floor 3", "Facilities", "In Use", 1100, 1200 * day, 3},
	{"AST-0009", "APC Smart-UPS 3000", "Power", "DC1 Rack A1", "Infrastructure", "In Use", 2400, 1800 * day, 5},
	{"AST-0010", "Dell PowerEdge R630", "Server", "Disposal Cage", "Infrastructure", "Retired", 9000, 2900 * day, 5},
}

type monitoredRow struct {
	name, ip, role, os string
	cpu, mem, disk     float64
	status             string
	uptimeDays         int
	seenAgo            time.Duration
}

var serverRows = []monitoredRow{
	{"web-prod-01", "10.20.1.10", "Web", "Ubuntu 22.04", 35.2, 61.0, 48.0, "online", 41, 30 * time.Second},
	{"web-prod-02", "10.20.1.11", "Web", "Ubuntu 22.04", 38.9, 58.4, 47.2, "online", 41, 30 * time.Second},
	{"db-prod-01", "10.20.1.20", "Database", "RHEL 9", 88.5, 92.1, 81.0, "critical", 120, 30 * time.Second},
	{"app-stage-01", "10.20.2.10", "Application", "Windows Server 2022", 22.0, 48.5, 35.5, "online", 12, time.Minute},
	{"ci-runner-01", "10.20.3.10", "CI", "Debian 12", 64.8, 70.2, 86.3, "warning", 7, time.Minute},
	{"legacy-erp-01", "10.20.5.10", "ERP", "Windows Server 2012 R2", 0, 0, 91.0, "offline", 0, 3 * time.Hour},
	{"dc-01", "10.20.0.5", "Domain Controller", "Windows Server 2019", 14.3, 52.0, 40.1, "online", 200, 30 * time.Second},
	{"mail-01", "10.20.0.25", "Mail", "Windows Server 2019", 71.5, 83.0, 66.0, "warning", 60, 30 * time.Second},
	{"backup-01", "10.20.4.5", "Backup", "Rocky Linux 9", 12.0, 33.3, 78.5, "online", 95, time.Minute},
	{"siem-01", "10.20.6.5", "SIEM", "Ubuntu 22.04", 55.0, 77.7, 62.4, "online", 30, 30 * time.Second},
}

type courseRow struct {
	title, track, level    string
	hours, seats, enrolled int
	startsIn               time.Duration
}

var courseRows = []courseRow{
	{"IOC Operator Fundamentals", "Operations", "Foundation", 8, 20, 18, 7 * day},
	{"SIEM Triage and Response", "Security", "Practitioner", 16, 12, 12, 14 * day},
	{"SCADA HMI for Rail Controllers", "Rail", "Practitioner", 24, 10, 6, 21 * day},
	{"Virtualisation Capacity Planning", "Infrastructure", "Practitioner", 12, 15, 9, 10 * day},
	{"Web Performance Monitoring", "Operations", "Foundation", 6, 25, 11, 3 * day},
	{"Configuration Drift Forensics", "Security", "Expert", 16, 8, 8, 28 * day},
}
