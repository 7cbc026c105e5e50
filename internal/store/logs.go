package store

import (
	"fmt"

	"github.com/ioc-platform/ioc/internal/model"
)

// InsertAlert logs a fired alert.
func (s *Store) InsertAlert(ts int64, alertType, source, subject, message, severity string) error {
	_, err := s.db.Exec(`
		INSERT INTO ioc_alert_log (ts, alert_type, source, subject, message, severity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, alertType, source, subject, message, severity,
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// ListAlerts returns the most recent alerts, newest first.
func (s *Store) ListAlerts(limit int) ([]model.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, ts, alert_type, source, subject, message, severity
		FROM ioc_alert_log ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var out []model.AlertRecord
	for rows.Next() {
		var a model.AlertRecord
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.AlertType, &a.Source, &a.Subject,
			&a.Message, &a.Severity); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAudit records an operator action.
func (s *Store) InsertAudit(r model.AuditRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO ioc_audit_log (ts, actor, action, target, success, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Timestamp, r.Actor, r.Action, r.Target, boolToInt(r.Success), r.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit records, newest first.
func (s *Store) ListAudit(limit int) ([]model.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, ts, actor, action, target, success, message
		FROM ioc_audit_log ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var r model.AuditRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Actor, &r.Action, &r.Target,
			&r.Success, &r.Message); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
