package seed

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// The fixture rows below reference their parent rows by 1-based position in
// the parent slice; the seeder maps positions to inserted IDs.

type hypervisorRow struct {
	name, host, platform, version string
	cores                         int
	cpuPct                        float64
	memTotal, memUsed             int64
	storTotal, storUsed           int64
	vmCount                       int
	status                        string
	seenAgo                       time.Duration
}

var hypervisorRows = []hypervisorRow{
	{"esx-prod-01", "10.10.1.11", "vmware", "8.0.2", 64, 72.5, 524288, 401408, 20000, 14500, 42, "online", time.Minute},
	{"esx-prod-02", "10.10.1.12", "vmware", "8.0.2", 64, 91.3, 524288, 480000, 20000, 17800, 38, "warning", time.Minute},
	{"hyperv-dc-01", "10.10.2.21", "hyperv", "2022", 48, 45.0, 393216, 220000, 15000, 8000, 25, "online", 2 * time.Minute},
	{"kvm-lab-01", "10.10.3.31", "kvm", "QEMU 8.2", 32, 12.4, 262144, 90000, 8000, 2100, 11, "online", 3 * time.Minute},
	{"pve-edge-01", "10.10.4.41", "proxmox", "8.1", 16, 0, 131072, 0, 4000, 1200, 0, "maintenance", 6 * time.Hour},
	{"xen-legacy-01", "10.10.5.51", "xen", "4.17", 24, 0, 196608, 0, 6000, 5100, 0, "offline", 72 * time.Hour},
}

type vmRow struct {
	name       string
	hypervisor int
	guestOS    string
	vcpus      int
	memMB      int64
	diskGB     int64
	cpuPct     float64
	memPct     float64
	power      string
	health     string
	ip         string
	tags       string
	createdAgo time.Duration
}

var vmRows = []vmRow{
	{"web-prod-01", 1, "Ubuntu 22.04 LTS", 4, 8192, 80, 35.2, 61.0, "running", "healthy", "10.20.1.10", `{"env":"production","tier":"web"}`, 400 * day},
	{"db-prod-01", 2, "Red Hat Enterprise Linux 9", 16, 65536, 500, 88.5, 92.1, "running", "critical", "10.20.1.20", `{"env":"production","tier":"db"}`, 380 * day},
	{"app-stage-01", 3, "Windows Server 2022", 8, 16384, 120, 22.0, 48.5, "running", "healthy", "10.20.2.10", `{"env":"staging"}`, 200 * day},
	{"ci-runner-01", 4, "Debian 12", 8, 16384, 200, 64.8, 70.2, "running", "warning", "10.20.3.10", `{"env":"development","team":"platform"}`, 90 * day},
	{"legacy-erp-01", 6, "Windows Server 2012 R2", 4, 8192, 250, 0, 0, "stopped", "warning", "10.20.5.10", `{"env":"production","eol":"true"}`, 2200 * day},
	{"test-sandbox-01", 4, "Rocky Linux 9", 2, 4096, 40, 0, 0, "suspended", "healthy", "10.20.3.20", `{"env":"development"}`, 30 * day},
}

type cloudRow struct {
	provider, instanceID, name, region, instanceType, state string
	monthlyCost, cpuPct                                     float64
	launchedAgo                                             time.Duration
}

var cloudRows = []cloudRow{
	{"aws", "i-0a1b2c3d4e5f60001", "api-gateway-aws", "us-east-1", "m6i.large", "running", 69.12, 41.5, 300 * day},
	{"aws", "i-0a1b2c3d4e5f60002", "batch-worker-aws", "us-east-1", "c6i.2xlarge", "running", 248.20, 78.3, 120 * day},
	{"aws", "i-0a1b2c3d4e5f60003", "old-reporting-aws", "eu-west-1", "t3.xlarge", "stopped", 0, 0, 700 * day},
	{"azure", "vm-ioc-analytics-01", "analytics-azure", "uksouth", "Standard_D4s_v5", "running", 140.16, 55.0, 250 * day},
	{"azure", "vm-ioc-backup-01", "backup-azure", "ukwest", "Standard_B2ms", "running", 60.74, 3.2, 500 * day},
	{"gcp", "4815162342", "ml-train-gcp", "europe-west2", "n2-highmem-8", "running", 395.52, 92.4, 45 * day},
	{"gcp", "4815162343", "dev-scratch-gcp", "europe-west2", "e2-medium", "terminated", 0, 0, 800 * day},
}

type recommendationRow struct {
	targetType, targetName, category, title, detail string
	savings                                         float64
	severity, status                                string
}

var recommendationRows = []recommendationRow{
	{"vm", "db-prod-01", "rightsizing", "Add vCPUs to db-prod-01", "CPU above 85% for 14 days. Add 4 vCPUs.", 0, "high", "open"},
	{"cloud", "backup-azure", "idle", "Downsize idle backup-azure", "Average CPU 3% over 30 days. Move to Standard_B1ms.", 35.00, "medium", "open"},
	{"vm", "legacy-erp-01", "snapshot", "Remove stale snapshots on legacy-erp-01", "2 snapshots older than 180 days consume 120 GB.", 18.50, "low", "open"},
	{"hypervisor", "esx-prod-02", "capacity", "esx-prod-02 memory nearly exhausted", "Memory at 92%. Migrate 3 VMs to esx-prod-01.", 0, "high", "open"},
	{"cloud", "batch-worker-aws", "rightsizing", "Move batch-worker-aws to spot capacity", "Interruptible batch workload suits spot pricing.", 120.00, "medium", "applied"},
}

type snapshotRow struct {
	vm          int
	name        string
	sizeGB      float64
	createdAgo  time.Duration
	description string
}

var snapshotRows = []snapshotRow{
	{5, "pre-upgrade-2019", 80.5, 2000 * day, "Before ERP patch 7.3"},
	{5, "month-end-close", 39.5, 400 * day, "Month end close backup"},
	{2, "pre-schema-change", 120.0, 3 * day, "Before orders table migration"},
	{1, "nightly", 12.25, day, "Scheduled nightly snapshot"},
}

type datastoreRow struct {
	hypervisor     int
	name, kind     string
	capacity, used int64
}

var datastoreRows = []datastoreRow{
	{1, "ds-prod-vmfs-01", "vmfs", 10000, 7800},
	{2, "ds-prod-vmfs-02", "vmfs", 10000, 9300},
	{1, "ds-shared-nfs", "nfs", 20000, 12000},
	{3, "ds-hyperv-local", "local", 15000, 8000},
	{4, "ds-lab-local", "local", 8000, 2100},
	{2, "ds-vsan-cluster", "vsan", 30000, 18000},
}

type websiteRow struct {
	name, url    string
	intervalSecs int
	status       string
	responseMS   int64
	checkedAgo   time.Duration
	sslIn        *time.Duration // expiry offset from now; nil for plain HTTP
	issuer       string
	enabled      bool
}

func in(d time.Duration) *time.Duration { return &d }

var websiteRows = []websiteRow{
	{"Corporate Site", "https://www.ioc-demo.example", 60, "up", 245, time.Minute, in(180 * day), "DigiCert TLS RSA SHA256 2020 CA1", true},
	{"Customer Portal", "https://portal.ioc-demo.example", 60, "up", 512, time.Minute, in(45 * day), "Let's Encrypt R3", true},
	{"Online Shop", "https://shop.ioc-demo.example", 120, "degraded", 3200, 2 * time.Minute, in(12 * day), "Sectigo RSA Domain Validation", true},
	{"Staff Intranet", "http://intranet.ioc-demo.example", 300, "up", 180, 5 * time.Minute, nil, "", true},
	{"Payments API", "https://api.ioc-demo.example/health", 30, "down", 0, time.Minute, in(5 * day), "Let's Encrypt R3", true},
	{"Legacy Booking", "https://booking.ioc-demo.example", 300, "unknown", 0, 0, in(-3 * day), "GoDaddy Secure CA - G2", false},
}

type checkRow struct {
	website    int
	ago        time.Duration
	status     string
	responseMS int64
	httpStatus int
	err        string
}

var checkRows = []checkRow{
	{1, time.Minute, "up", 245, 200, ""},
	{1, 2 * time.Minute, "up", 260, 200, ""},
	{2, time.Minute, "up", 512, 200, ""},
	{2, 2 * time.Minute, "up", 488, 200, ""},
	{3, 2 * time.Minute, "degraded", 3200, 200, ""},
	{3, 4 * time.Minute, "degraded", 2900, 200, ""},
	{4, 5 * time.Minute, "up", 180, 200, ""},
	{4, 10 * time.Minute, "up", 175, 200, ""},
	{5, time.Minute, "down", 0, 503, "service unavailable"},
	{5, 2 * time.Minute, "down", 0, 0, "connection refused"},
	{6, 3 * day, "down", 0, 0, "certificate has expired"},
	{6, 4 * day, "up", 640, 200, ""},
}

type transactionRow struct {
	website    int
	name       string
	status     string
	durationMS int64
}

var transactionRows = []transactionRow{
	{2, "Portal Login", "up", 1850},
	{3, "Shop Checkout", "degraded", 7400},
	{5, "Payment Authorisation", "down", 0},
	{4, "Intranet Search", "up", 620},
}

type stepRow struct {
	transaction int
	order       int
	name        string
	action      string
	target      string
	durationMS  int64
}

var stepRows = []stepRow{
	{1, 1, "Open login page", "navigate", "/login", 600},
	{1, 2, "Enter credentials", "fill", "#username,#password", 250},
	{1, 3, "Submit", "click", "button[type=submit]", 1000},
	{2, 1, "Open product", "navigate", "/products/ioc-starter", 1900},
	{2, 2, "Add to basket", "click", "#add-to-basket", 1200},
	{2, 3, "Enter delivery details", "fill", "#checkout-form", 800},
	{2, 4, "Order confirmed", "assert", ".order-confirmation", 3500},
	{3, 1, "Create payment", "navigate", "/v1/payments", 0},
	{3, 2, "Authorised", "assert", "$.status == 'authorised'", 0},
	{4, 1, "Search for policy", "navigate", "/search?q=leave+policy", 620},
}

type websiteAlertRow struct {
	website     int
	kind        string
	message     string
	severity    string
	ago         time.Duration
	resolvedAgo *time.Duration
}

var websiteAlertRows = []websiteAlertRow{
	{5, "down", "Payments API returned 503 for 2 consecutive checks", "critical", 2 * time.Minute, nil},
	{3, "slow", "Online Shop response time above 2000 ms", "warning", 30 * time.Minute, in(5 * time.Minute)},
	{6, "ssl_expiry", "Legacy Booking certificate expired 3 days ago", "critical", 3 * day, nil},
}

type serverRow struct {
	hostname, ip, osName, osVersion, platform, environment, compliance string
	drift                                                              int
	scannedAgo                                                         time.Duration
}

var serverRows = []serverRow{
	{"web-prod-01", "10.20.1.10", "Ubuntu", "22.04", "linux", "production", "compliant", 0, 15 * time.Minute},
	{"db-prod-01", "10.20.1.20", "Red Hat Enterprise Linux", "9.3", "linux", "production", "non_compliant", 3, 15 * time.Minute},
	{"app-stage-01", "10.20.2.10", "Windows Server", "2022", "windows", "staging", "compliant", 0, time.Hour},
	{"ci-runner-01", "10.20.3.10", "Debian", "12", "linux", "development", "unknown", 0, 48 * time.Hour},
	{"legacy-erp-01", "10.20.5.10", "Windows Server", "2012 R2", "windows", "production", "non_compliant", 5, 2 * time.Hour},
	{"dc-01", "10.20.0.5", "Windows Server", "2019", "windows", "production", "compliant", 1, 30 * time.Minute},
}

type changeRow struct {
	server             int
	ago                time.Duration
	category, item     string
	oldValue, newValue string
	changedBy          string
}

var changeRows = []changeRow{
	{2, 2 * time.Hour, "package", "openssl", "3.0.7-18.el9", "3.0.7-24.el9", "dnf-automatic"},
	{2, 5 * time.Hour, "file", "/etc/my.cnf", "max_connections=500", "max_connections=1500", "dba.jones"},
	{2, 26 * time.Hour, "user", "svc_backup", "", "created", "root"},
	{5, 3 * time.Hour, "registry", `HKLM\SYSTEM\CurrentControlSet\Services\LanmanServer\Parameters\SMB1`, "0", "1", "CORP\\erp.admin"},
	{5, 30 * time.Hour, "service", "Print Spooler", "Disabled", "Automatic", "CORP\\erp.admin"},
	{1, 4 * day, "package", "nginx", "1.18.0-6ubuntu14.3", "1.18.0-6ubuntu14.4", "unattended-upgrades"},
	{6, 6 * time.Hour, "user", "CORP\\temp.contractor", "", "added to Domain Admins", "CORP\\it.ops"},
	{3, 2 * day, "service", "W3SVC", "Stopped", "Running", "CORP\\deploy"},
}

type fileRow struct {
	server      int
	path        string
	verifiedAgo time.Duration
	status      string
}

var fileRows = []fileRow{
	{1, "/etc/passwd", 15 * time.Minute, "unchanged"},
	{1, "/etc/nginx/nginx.conf", 15 * time.Minute, "unchanged"},
	{2, "/etc/my.cnf", 15 * time.Minute, "modified"},
	{2, "/etc/ssh/sshd_config", 15 * time.Minute, "unchanged"},
	{4, "/etc/gitlab-runner/config.toml", 48 * time.Hour, "new"},
	{5, `C:\Windows\System32\drivers\etc\hosts`, 2 * time.Hour, "modified"},
	{5, `C:\ERP\config\erp.ini`, 2 * time.Hour, "missing"},
	{6, `C:\Windows\NTDS\ntds.dit`, 30 * time.Minute, "unchanged"},
}

type certificateRow struct {
	server                  int
	subject, issuer, serial string
	issuedAgo, expiresIn    time.Duration
	keyAlgorithm            string
}

var certificateRows = []certificateRow{
	{1, "CN=www.ioc-demo.example", "CN=R3,O=Let's Encrypt", "04:8a:1f:22:9c", 60 * day, 30 * day, "ECDSA-P256"},
	{2, "CN=db-prod-01.corp.local", "CN=Corp Issuing CA 01", "6f:00:00:01:2a", 300 * day, 65 * day, "RSA-2048"},
	{3, "CN=app-stage-01.corp.local", "CN=Corp Issuing CA 01", "6f:00:00:01:7c", 100 * day, 265 * day, "RSA-2048"},
	{5, "CN=erp.corp.local", "CN=Corp Issuing CA 00", "1d:00:00:00:09", 720 * day, -10 * day, "RSA-1024"},
	{6, "CN=dc-01.corp.local", "CN=Corp Issuing CA 01", "6f:00:00:00:f3", 200 * day, 165 * day, "RSA-4096"},
	{6, "CN=Corp Issuing CA 01", "CN=Corp Root CA", "3a:11:00:00:01", 1000 * day, 2650 * day, "RSA-4096"},
}

type firewallRow struct {
	server                                  int
	name, direction, action, protocol, port string
	source                                  string
	enabled                                 bool
}

var firewallRows = []firewallRow{
	{1, "allow-https", "inbound", "allow", "tcp", "443", "any", true},
	{1, "allow-ssh-mgmt", "inbound", "allow", "tcp", "22", "10.0.0.0/8", true},
	{2, "allow-mysql-app", "inbound", "allow", "tcp", "3306", "10.20.1.0/24", true},
	{2, "allow-mysql-any", "inbound", "allow", "tcp", "3306", "any", true},
	{3, "allow-rdp", "inbound", "allow", "tcp", "3389", "10.0.0.0/8", true},
	{5, "allow-smb", "inbound", "allow", "tcp", "445", "any", true},
	{5, "block-telnet", "inbound", "deny", "tcp", "23", "any", false},
	{6, "deny-outbound-smtp", "outbound", "deny", "tcp", "25", "any", true},
}

type taskRow struct {
	server                         int
	name, schedule, command, runAs string
	lastRunAgo                     *time.Duration
	result                         string
}

var taskRows = []taskRow{
	{1, "logrotate", "0 0 * * *", "/usr/sbin/logrotate /etc/logrotate.conf", "root", in(9 * time.Hour), "success"},
	{2, "mysql-backup", "30 1 * * *", "/opt/backup/mysqldump.sh --all-databases", "mysql", in(8 * time.Hour), "failure"},
	{3, "IIS log cleanup", "Daily 02:00", `powershell.exe -File C:\Scripts\Clean-IISLogs.ps1`, "SYSTEM", in(7 * time.Hour), "success"},
	{4, "runner-prune", "0 */6 * * *", "docker system prune -af", "gitlab-runner", in(2 * time.Hour), "success"},
	{5, "ERP month end", "Monthly day 1 23:00", `C:\ERP\bin\close.exe /period:auto`, `CORP\erp.svc`, nil, "never"},
	{6, "AD replication check", "Hourly", "repadmin /replsummary", `CORP\it.ops`, in(30 * time.Minute), "success"},
}

type softwareRow struct {
	server                int
	name, version, vendor string
	installedAgo          time.Duration
}

var softwareRows = []softwareRow{
	{1, "nginx", "1.18.0", "F5 Networks", 400 * day},
	{1, "openssl", "3.0.2", "OpenSSL Project", 400 * day},
	{2, "mysql-community-server", "8.0.36", "Oracle", 380 * day},
	{2, "openssl", "3.0.7", "OpenSSL Project", 2 * time.Hour},
	{3, "Microsoft .NET Runtime", "8.0.2", "Microsoft", 60 * day},
	{3, "IIS", "10.0", "Microsoft", 200 * day},
	{4, "gitlab-runner", "16.9.1", "GitLab", 90 * day},
	{4, "docker-ce", "25.0.3", "Docker", 90 * day},
	{5, "Java SE Runtime", "1.8.0_202", "Oracle", 2000 * day},
	{6, "Active Directory Domain Services", "10.0.17763", "Microsoft", 1500 * day},
}

const day = 24 * time.Hour

// fileHash returns a stable fake SHA-256 for a seeded file.
func fileHash(host, path string) string {
	sum := sha256.Sum256([]byte(host + ":" + path))
	return hex.EncodeToString(sum[:])
}
