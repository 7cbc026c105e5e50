package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ioc-platform/ioc/internal/model"
)

const serverColumns = `id, hostname, ip_address, os_name, os_version, platform, environment,
	compliance_status, drift_count, last_scan`

func scanServer(sc scanner) (model.Server, error) {
	var sv model.Server
	err := sc.Scan(&sv.ID, &sv.Hostname, &sv.IPAddress, &sv.OSName, &sv.OSVersion,
		&sv.Platform, &sv.Environment, &sv.ComplianceStatus, &sv.DriftCount, &sv.LastScan)
	return sv, err
}

// ListServers returns all configuration-monitored servers ordered by hostname.
func (s *Store) ListServers() ([]model.Server, error) {
	rows, err := s.db.Query(`SELECT ` + serverColumns + ` FROM scm_servers ORDER BY hostname`)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var out []model.Server
	for rows.Next() {
		sv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

// GetServer returns a server by ID.
func (s *Store) GetServer(id int64) (*model.Server, error) {
	sv, err := scanServer(s.db.QueryRow(`SELECT `+serverColumns+` FROM scm_servers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying server %d: %w", id, err)
	}
	return &sv, nil
}

// GetServerByHostname returns a server by its hostname.
func (s *Store) GetServerByHostname(hostname string) (*model.Server, error) {
	sv, err := scanServer(s.db.QueryRow(`SELECT `+serverColumns+` FROM scm_servers WHERE hostname = ?`, hostname))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("server %q: %w", hostname, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying server %q: %w", hostname, err)
	}
	return &sv, nil
}

// GetServerDetail returns a server together with all of its child rows.
func (s *Store) GetServerDetail(id int64) (*model.ServerDetail, error) {
	sv, err := s.GetServer(id)
	if err != nil {
		return nil, err
	}
	d := &model.ServerDetail{Server: *sv}

	if d.Changes, err = s.ListConfigChanges(id, 0); err != nil {
		return nil, err
	}
	if d.Files, err = s.ListFileIntegrity(id); err != nil {
		return nil, err
	}
	if d.Certificates, err = s.listCertificates(`WHERE server_id = ?`, id); err != nil {
		return nil, err
	}
	if d.FirewallRules, err = s.listFirewallRules(id); err != nil {
		return nil, err
	}
	if d.Tasks, err = s.listScheduledTasks(id); err != nil {
		return nil, err
	}
	if d.Software, err = s.listInstalledSoftware(id); err != nil {
		return nil, err
	}
	return d, nil
}

// ListConfigChanges returns a server's changes, newest first. serverID 0
// returns changes across all servers.
func (s *Store) ListConfigChanges(serverID int64, limit int) ([]model.ConfigChange, error) {
	query := `SELECT id, server_id, changed_at, category, item, old_value, new_value, changed_by
		FROM scm_config_changes`
	var args []any
	if serverID > 0 {
		query += ` WHERE server_id = ?`
		args = append(args, serverID)
	}
	query += ` ORDER BY changed_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying config changes: %w", err)
	}
	defer rows.Close()

	var out []model.ConfigChange
	for rows.Next() {
		var c model.ConfigChange
		if err := rows.Scan(&c.ID, &c.ServerID, &c.ChangedAt, &c.Category, &c.Item,
			&c.OldValue, &c.NewValue, &c.ChangedBy); err != nil {
			return nil, fmt.Errorf("scanning config change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListFileIntegrity returns the watched files of a server ordered by path.
func (s *Store) ListFileIntegrity(serverID int64) ([]model.FileIntegrity, error) {
	rows, err := s.db.Query(`
		SELECT id, server_id, path, sha256, last_verified, status
		FROM scm_file_integrity WHERE server_id = ? ORDER BY path`, serverID)
	if err != nil {
		return nil, fmt.Errorf("querying file integrity: %w", err)
	}
	defer rows.Close()

	var out []model.FileIntegrity
	for rows.Next() {
		var f model.FileIntegrity
		if err := rows.Scan(&f.ID, &f.ServerID, &f.Path, &f.SHA256, &f.LastVerified, &f.Status); err != nil {
			return nil, fmt.Errorf("scanning file integrity: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListCertificates returns every server certificate ordered by expiry.
func (s *Store) ListCertificates() ([]model.Certificate, error) {
	return s.listCertificates("")
}

func (s *Store) listCertificates(where string, args ...any) ([]model.Certificate, error) {
	rows, err := s.db.Query(`
		SELECT id, server_id, subject, issuer, serial, not_before, not_after, key_algorithm
		FROM scm_certificates `+where+` ORDER BY not_after`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying certificates: %w", err)
	}
	defer rows.Close()

	var out []model.Certificate
	for rows.Next() {
		var c model.Certificate
		if err := rows.Scan(&c.ID, &c.ServerID, &c.Subject, &c.Issuer, &c.Serial,
			&c.NotBefore, &c.NotAfter, &c.KeyAlgorithm); err != nil {
			return nil, fmt.Errorf("scanning certificate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) listFirewallRules(serverID int64) ([]model.FirewallRule, error) {
	rows, err := s.db.Query(`
		SELECT id, server_id, rule_name, direction, action, protocol, port, source, enabled
		FROM scm_firewall_rules WHERE server_id = ? ORDER BY id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("querying firewall rules: %w", err)
	}
	defer rows.Close()

	var out []model.FirewallRule
	for rows.Next() {
		var r model.FirewallRule
		if err := rows.Scan(&r.ID, &r.ServerID, &r.RuleName, &r.Direction, &r.Action,
			&r.Protocol, &r.Port, &r.Source, &r.Enabled); err != nil {
			return nil, fmt.Errorf("scanning firewall rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) listScheduledTasks(serverID int64) ([]model.ScheduledTask, error) {
	rows, err := s.db.Query(`
		SELECT id, server_id, name, schedule, command, run_as, last_run, last_result
		FROM scm_scheduled_tasks WHERE server_id = ? ORDER BY name`, serverID)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduledTask
	for rows.Next() {
		var (
			t       model.ScheduledTask
			lastRun sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.ServerID, &t.Name, &t.Schedule, &t.Command,
			&t.RunAs, &lastRun, &t.LastResult); err != nil {
			return nil, fmt.Errorf("scanning scheduled task: %w", err)
		}
		t.LastRun = ptrInt64(lastRun)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) listInstalledSoftware(serverID int64) ([]model.InstalledSoftware, error) {
	rows, err := s.db.Query(`
		SELECT id, server_id, name, version, vendor, installed_at
		FROM scm_installed_software WHERE server_id = ? ORDER BY name`, serverID)
	if err != nil {
		return nil, fmt.Errorf("querying installed software: %w", err)
	}
	defer rows.Close()

	var out []model.InstalledSoftware
	for rows.Next() {
		var sw model.InstalledSoftware
		if err := rows.Scan(&sw.ID, &sw.ServerID, &sw.Name, &sw.Version, &sw.Vendor, &sw.InstalledAt); err != nil {
			return nil, fmt.Errorf("scanning installed software: %w", err)
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// UpsertFileIntegrity inserts or updates the hash record of a watched file.
func (s *Store) UpsertFileIntegrity(f model.FileIntegrity) error {
	var query string
	switch s.driver {
	case DriverMySQL:
		query = `INSERT INTO scm_file_integrity (server_id, path, sha256, last_verified, status)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				sha256 = VALUES(sha256),
				last_verified = VALUES(last_verified),
				status = VALUES(status)`
	default:
		query = `INSERT INTO scm_file_integrity (server_id, path, sha256, last_verified, status)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(server_id, path) DO UPDATE SET
				sha256 = excluded.sha256,
				last_verified = excluded.last_verified,
				status = excluded.status`
	}
	if _, err := s.db.Exec(query, f.ServerID, f.Path, f.SHA256, f.LastVerified, f.Status); err != nil {
		return fmt.Errorf("upserting file integrity %s: %w", f.Path, err)
	}
	return nil
}

// RecordDrift stores a detected configuration change, increments the
// server's drift counter and marks it non-compliant.
func (s *Store) RecordDrift(c model.ConfigChange) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning drift transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO scm_config_changes (server_id, changed_at, category, item, old_value, new_value, changed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ServerID, c.ChangedAt, c.Category, c.Item, c.OldValue, c.NewValue, c.ChangedBy,
	); err != nil {
		return fmt.Errorf("inserting config change: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE scm_servers SET drift_count = drift_count + 1, compliance_status = ?
		WHERE id = ?`, model.NonCompliant, c.ServerID,
	); err != nil {
		return fmt.Errorf("incrementing drift for server %d: %w", c.ServerID, err)
	}
	return tx.Commit()
}

// MarkServerScanned updates a server's last scan time.
func (s *Store) MarkServerScanned(id, ts int64) error {
	if _, err := s.db.Exec(`UPDATE scm_servers SET last_scan = ? WHERE id = ?`, ts, id); err != nil {
		return fmt.Errorf("marking server %d scanned: %w", id, err)
	}
	return nil
}
