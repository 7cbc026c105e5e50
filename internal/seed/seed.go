// Package seed rebuilds the domain schema and loads the fixed sample data
// set for the virtualization, web performance and server configuration
// dashboards.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ioc-platform/ioc/internal/store"
)

// uuidNamespace scopes the name-based UUIDs given to seeded guests.
var uuidNamespace = uuid.MustParse("6f1c2a4e-8d3b-4c59-9a7e-1b2d3c4e5f60")

// ExpectedCounts returns the number of rows Run inserts into each domain table.
func ExpectedCounts() map[string]int {
	return map[string]int{
		"vman_hypervisors":       len(hypervisorRows),
		"vman_virtual_machines":  len(vmRows),
		"vman_cloud_instances":   len(cloudRows),
		"vman_recommendations":   len(recommendationRows),
		"vman_snapshots":         len(snapshotRows),
		"vman_datastores":        len(datastoreRows),
		"wpm_websites":           len(websiteRows),
		"wpm_checks":             len(checkRows),
		"wpm_transactions":       len(transactionRows),
		"wpm_transaction_steps":  len(stepRows),
		"wpm_alerts":             len(websiteAlertRows),
		"scm_servers":            len(serverRows),
		"scm_config_changes":     len(changeRows),
		"scm_file_integrity":     len(fileRows),
		"scm_certificates":       len(certificateRows),
		"scm_firewall_rules":     len(firewallRows),
		"scm_scheduled_tasks":    len(taskRows),
		"scm_installed_software": len(softwareRows),
	}
}

// VMUUID returns the deterministic UUID assigned to a seeded VM or cloud instance.
func VMUUID(name string) string {
	return uuid.NewSHA1(uuidNamespace, []byte(name)).String()
}

// Report summarises a seed run.
type Report struct {
	Counts   map[string]int
	Duration time.Duration
}

// Total returns the number of rows inserted across all tables.
func (r *Report) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Seeder resets the domain schema and inserts the sample data.
type Seeder struct {
	Store        *store.Store
	Now          func() time.Time
	SiteTitle    string
	Organisation string
}

// New creates a seeder using the wall clock.
func New(s *store.Store) *Seeder {
	return &Seeder{Store: s, Now: time.Now}
}

// Run drops and recreates the 18 domain tables and then loads the sample rows
// in a single transaction. On any insert failure the transaction is rolled
// back and the error returned.
func (sd *Seeder) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	m, err := sd.Store.Migrator()
	if err != nil {
		return nil, err
	}
	if err := m.Reset(); err != nil {
		return nil, fmt.Errorf("resetting schema: %w", err)
	}

	report, err := sd.Populate(ctx)
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	slog.Info("seed complete", "rows", report.Total(), "tables", len(report.Counts), "duration", report.Duration)
	return report, nil
}

// Populate inserts the sample rows into an already-migrated schema.
func (sd *Seeder) Populate(ctx context.Context) (*Report, error) {
	now := time.Now()
	if sd.Now != nil {
		now = sd.Now()
	}

	tx, err := sd.Store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning seed transaction: %w", err)
	}

	w := &writer{ctx: ctx, tx: tx, now: now, counts: map[string]int{}}
	steps := []func() error{
		w.vman,
		w.wpm,
		w.scm,
		func() error { return w.settings(sd.Store.InsertSettingIfAbsentSQL(), sd.SiteTitle, sd.Organisation) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("seed rollback failed", "error", rbErr)
			}
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing seed transaction: %w", err)
	}
	return &Report{Counts: w.counts}, nil
}

type writer struct {
	ctx    context.Context
	tx     *sql.Tx
	now    time.Time
	counts map[string]int
}

func (w *writer) ago(d time.Duration) int64 { return w.now.Add(-d).Unix() }

func (w *writer) insert(table string, cols []string, vals ...any) (int64, error) {
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	res, err := w.tx.ExecContext(w.ctx, query, vals...)
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	if table != "ioc_settings" {
		w.counts[table]++
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading id from %s: %w", table, err)
	}
	return id, nil
}

func (w *writer) vman() error {
	hvIDs := make([]int64, len(hypervisorRows))
	for i, h := range hypervisorRows {
		id, err := w.insert("vman_hypervisors",
			[]string{"name", "host", "platform", "version", "cpu_cores", "cpu_usage_pct",
				"memory_total_mb", "memory_used_mb", "storage_total_gb", "storage_used_gb",
				"vm_count", "status", "last_seen"},
			h.name, h.host, h.platform, h.version, h.cores, h.cpuPct,
			h.memTotal, h.memUsed, h.storTotal, h.storUsed, h.vmCount, h.status, w.ago(h.seenAgo))
		if err != nil {
			return err
		}
		hvIDs[i] = id
	}

	vmIDs := make([]int64, len(vmRows))
	for i, v := range vmRows {
		id, err := w.insert("vman_virtual_machines",
			[]string{"uuid", "name", "hypervisor_id", "guest_os", "vcpus", "memory_mb", "disk_gb",
				"cpu_usage_pct", "memory_usage_pct", "power_state", "health", "ip_address",
				"tags", "created_at"},
			VMUUID(v.name), v.name, hvIDs[v.hypervisor-1], v.guestOS, v.vcpus, v.memMB, v.diskGB,
			v.cpuPct, v.memPct, v.power, v.health, v.ip, v.tags, w.ago(v.createdAgo))
		if err != nil {
			return err
		}
		vmIDs[i] = id
	}

	for _, c := range cloudRows {
		if _, err := w.insert("vman_cloud_instances",
			[]string{"uuid", "provider", "instance_id", "name", "region", "instance_type",
				"state", "monthly_cost", "cpu_usage_pct", "launched_at"},
			VMUUID(c.provider+"/"+c.instanceID), c.provider, c.instanceID, c.name, c.region,
			c.instanceType, c.state, c.monthlyCost, c.cpuPct, w.ago(c.launchedAgo)); err != nil {
			return err
		}
	}

	for _, r := range recommendationRows {
		if _, err := w.insert("vman_recommendations",
			[]string{"target_type", "target_name", "category", "title", "detail",
				"estimated_savings", "severity", "status"},
			r.targetType, r.targetName, r.category, r.title, r.detail, r.savings, r.severity, r.status); err != nil {
			return err
		}
	}

	for _, sn := range snapshotRows {
		if _, err := w.insert("vman_snapshots",
			[]string{"vm_id", "name", "size_gb", "created_at", "description"},
			vmIDs[sn.vm-1], sn.name, sn.sizeGB, w.ago(sn.createdAgo), sn.description); err != nil {
			return err
		}
	}

	for _, d := range datastoreRows {
		if _, err := w.insert("vman_datastores",
			[]string{"hypervisor_id", "name", "type", "capacity_gb", "used_gb"},
			hvIDs[d.hypervisor-1], d.name, d.kind, d.capacity, d.used); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) wpm() error {
	siteIDs := make([]int64, len(websiteRows))
	for i, s := range websiteRows {
		var expiry sql.NullInt64
		if s.sslIn != nil {
			expiry = sql.NullInt64{Int64: w.now.Add(*s.sslIn).Unix(), Valid: true}
		}
		var checked int64
		if s.checkedAgo > 0 {
			checked = w.ago(s.checkedAgo)
		}
		id, err := w.insert("wpm_websites",
			[]string{"name", "url", "check_interval_secs", "last_status", "last_response_ms",
				"last_checked", "ssl_expiry_date", "ssl_issuer", "enabled"},
			s.name, s.url, s.intervalSecs, s.status, s.responseMS, checked, expiry, s.issuer, boolInt(s.enabled))
		if err != nil {
			return err
		}
		siteIDs[i] = id
	}

	for _, c := range checkRows {
		if _, err := w.insert("wpm_checks",
			[]string{"website_id", "checked_at", "status", "response_ms", "http_status", "error"},
			siteIDs[c.website-1], w.ago(c.ago), c.status, c.responseMS, c.httpStatus, c.err); err != nil {
			return err
		}
	}

	txIDs := make([]int64, len(transactionRows))
	for i, t := range transactionRows {
		id, err := w.insert("wpm_transactions",
			[]string{"website_id", "name", "last_status", "last_duration_ms"},
			siteIDs[t.website-1], t.name, t.status, t.durationMS)
		if err != nil {
			return err
		}
		txIDs[i] = id
	}

	for _, st := range stepRows {
		if _, err := w.insert("wpm_transaction_steps",
			[]string{"transaction_id", "step_order", "name", "action", "target", "last_duration_ms"},
			txIDs[st.transaction-1], st.order, st.name, st.action, st.target, st.durationMS); err != nil {
			return err
		}
	}

	for _, a := range websiteAlertRows {
		var resolved sql.NullInt64
		if a.resolvedAgo != nil {
			resolved = sql.NullInt64{Int64: w.ago(*a.resolvedAgo), Valid: true}
		}
		if _, err := w.insert("wpm_alerts",
			[]string{"website_id", "alert_type", "message", "severity", "created_at", "resolved_at"},
			siteIDs[a.website-1], a.kind, a.message, a.severity, w.ago(a.ago), resolved); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) scm() error {
	serverIDs := make([]int64, len(serverRows))
	for i, s := range serverRows {
		id, err := w.insert("scm_servers",
			[]string{"hostname", "ip_address", "os_name", "os_version", "platform", "environment",
				"compliance_status", "drift_count", "last_scan"},
			s.hostname, s.ip, s.osName, s.osVersion, s.platform, s.environment, s.compliance, s.drift, w.ago(s.scannedAgo))
		if err != nil {
			return err
		}
		serverIDs[i] = id
	}

	for _, c := range changeRows {
		if _, err := w.insert("scm_config_changes",
			[]string{"server_id", "changed_at", "category", "item", "old_value", "new_value", "changed_by"},
			serverIDs[c.server-1], w.ago(c.ago), c.category, c.item, c.oldValue, c.newValue, c.changedBy); err != nil {
			return err
		}
	}

	for _, f := range fileRows {
		hash := fileHash(serverRows[f.server-1].hostname, f.path)
		if f.status == "missing" {
			hash = ""
		}
		if _, err := w.insert("scm_file_integrity",
			[]string{"server_id", "path", "sha256", "last_verified", "status"},
			serverIDs[f.server-1], f.path, hash, w.ago(f.verifiedAgo), f.status); err != nil {
			return err
		}
	}

	for _, c := range certificateRows {
		if _, err := w.insert("scm_certificates",
			[]string{"server_id", "subject", "issuer", "serial", "not_before", "not_after", "key_algorithm"},
			serverIDs[c.server-1], c.subject, c.issuer, c.serial, w.ago(c.issuedAgo),
			w.now.Add(c.expiresIn).Unix(), c.keyAlgorithm); err != nil {
			return err
		}
	}

	for _, r := range firewallRows {
		if _, err := w.insert("scm_firewall_rules",
			[]string{"server_id", "rule_name", "direction", "action", "protocol", "port", "source", "enabled"},
			serverIDs[r.server-1], r.name, r.direction, r.action, r.protocol, r.port, r.source, boolInt(r.enabled)); err != nil {
			return err
		}
	}

	for _, t := range taskRows {
		var lastRun sql.NullInt64
		if t.lastRunAgo != nil {
			lastRun = sql.NullInt64{Int64: w.ago(*t.lastRunAgo), Valid: true}
		}
		if _, err := w.insert("scm_scheduled_tasks",
			[]string{"server_id", "name", "schedule", "command", "run_as", "last_run", "last_result"},
			serverIDs[t.server-1], t.name, t.schedule, t.command, t.runAs, lastRun, t.result); err != nil {
			return err
		}
	}

	for _, sw := range softwareRows {
		if _, err := w.insert("scm_installed_software",
			[]string{"server_id", "name", "version", "vendor", "installed_at"},
			serverIDs[sw.server-1], sw.name, sw.version, sw.vendor, w.ago(sw.installedAgo)); err != nil {
			return err
		}
	}
	return nil
}

// settings writes the default document branding without replacing values an
// operator has already changed.
func (w *writer) settings(query, title, organisation string) error {
	defaults := [][2]string{
		{store.SettingSiteTitle, title},
		{store.SettingOrganisation, organisation},
	}
	for _, kv := range defaults {
		if kv[1] == "" {
			continue
		}
		if _, err := w.tx.ExecContext(w.ctx, query, kv[0], kv[1], w.now.Unix()); err != nil {
			return fmt.Errorf("writing default setting %s: %w", kv[0], err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
