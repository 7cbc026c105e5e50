package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ioc-platform/ioc/internal/model"
)

const websiteColumns = `id, name, url, check_interval_secs, last_status, last_response_ms,
	last_checked, ssl_expiry_date, ssl_issuer, enabled`

type scanner interface {
	Scan(dest ...any) error
}

func scanWebsite(sc scanner) (model.Website, error) {
	var (
		w      model.Website
		expiry sql.NullInt64
	)
	err := sc.Scan(&w.ID, &w.Name, &w.URL, &w.CheckIntervalSecs, &w.LastStatus,
		&w.LastResponseMS, &w.LastChecked, &expiry, &w.SSLIssuer, &w.Enabled)
	w.SSLExpiryDate = ptrInt64(expiry)
	return w, err
}

// ListWebsites returns all monitored websites ordered by name.
func (s *Store) ListWebsites() ([]model.Website, error) {
	rows, err := s.db.Query(`SELECT ` + websiteColumns + ` FROM wpm_websites ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying websites: %w", err)
	}
	defer rows.Close()

	var out []model.Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning website: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetWebsite returns one website by ID.
func (s *Store) GetWebsite(id int64) (*model.Website, error) {
	w, err := scanWebsite(s.db.QueryRow(`SELECT `+websiteColumns+` FROM wpm_websites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("website %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying website %d: %w", id, err)
	}
	return &w, nil
}

// RecordWebsiteCheck stores a probe result and updates the website's
// last-known status in one transaction.
func (s *Store) RecordWebsiteCheck(c model.WebsiteCheck) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning check transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO wpm_checks (website_id, checked_at, status, response_ms, http_status, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.WebsiteID, c.CheckedAt, c.Status, c.ResponseMS, c.HTTPStatus, c.Error,
	); err != nil {
		return fmt.Errorf("inserting website check: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE wpm_websites SET last_status = ?, last_response_ms = ?, last_checked = ?
		WHERE id = ?`,
		c.Status, c.ResponseMS, c.CheckedAt, c.WebsiteID,
	); err != nil {
		return fmt.Errorf("updating website %d: %w", c.WebsiteID, err)
	}
	return tx.Commit()
}

// UpdateWebsiteTLS records the leaf certificate expiry seen by the probe.
func (s *Store) UpdateWebsiteTLS(id, expiry int64, issuer string) error {
	_, err := s.db.Exec(`UPDATE wpm_websites SET ssl_expiry_date = ?, ssl_issuer = ? WHERE id = ?`,
		expiry, issuer, id)
	if err != nil {
		return fmt.Errorf("updating tls info for website %d: %w", id, err)
	}
	return nil
}

// ListWebsiteChecks returns the most recent checks for a website, newest first.
func (s *Store) ListWebsiteChecks(websiteID int64, limit int) ([]model.WebsiteCheck, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, website_id, checked_at, status, response_ms, http_status, error
		FROM wpm_checks WHERE website_id = ?
		ORDER BY checked_at DESC, id DESC LIMIT ?`, websiteID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying website checks: %w", err)
	}
	defer rows.Close()

	var out []model.WebsiteCheck
	for rows.Next() {
		var c model.WebsiteCheck
		if err := rows.Scan(&c.ID, &c.WebsiteID, &c.CheckedAt, &c.Status,
			&c.ResponseMS, &c.HTTPStatus, &c.Error); err != nil {
			return nil, fmt.Errorf("scanning website check: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// QueryResponseSeries returns response time points for a website since the
// given unix time, oldest first.
func (s *Store) QueryResponseSeries(websiteID, since int64) ([]model.SeriesPoint, error) {
	rows, err := s.db.Query(`
		SELECT checked_at, response_ms FROM wpm_checks
		WHERE website_id = ? AND checked_at >= ?
		ORDER BY checked_at ASC`, websiteID, since)
	if err != nil {
		return nil, fmt.Errorf("querying response series: %w", err)
	}
	defer rows.Close()

	var points []model.SeriesPoint
	for rows.Next() {
		var p model.SeriesPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("scanning series point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListTransactions returns all transactions with their ordered steps.
func (s *Store) ListTransactions() ([]model.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, website_id, name, last_status, last_duration_ms
		FROM wpm_transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	var out []model.Transaction
	index := map[int64]int{}
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.WebsiteID, &t.Name, &t.LastStatus, &t.LastDurationMS); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps, err := s.db.Query(`
		SELECT id, transaction_id, step_order, name, action, target, last_duration_ms
		FROM wpm_transaction_steps ORDER BY transaction_id, step_order`)
	if err != nil {
		return nil, fmt.Errorf("querying transaction steps: %w", err)
	}
	defer steps.Close()
	for steps.Next() {
		var st model.TransactionStep
		if err := steps.Scan(&st.ID, &st.TransactionID, &st.StepOrder, &st.Name,
			&st.Action, &st.Target, &st.LastDurationMS); err != nil {
			return nil, fmt.Errorf("scanning transaction step: %w", err)
		}
		if i, ok := index[st.TransactionID]; ok {
			out[i].Steps = append(out[i].Steps, st)
		}
	}
	return out, steps.Err()
}

// ListWebsiteAlerts returns WPM alerts, newest first. When openOnly is set,
// resolved alerts are skipped.
func (s *Store) ListWebsiteAlerts(openOnly bool) ([]model.WebsiteAlert, error) {
	query := `SELECT id, website_id, alert_type, message, severity, created_at, resolved_at
		FROM wpm_alerts`
	if openOnly {
		query += ` WHERE resolved_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying website alerts: %w", err)
	}
	defer rows.Close()

	var out []model.WebsiteAlert
	for rows.Next() {
		var (
			a        model.WebsiteAlert
			resolved sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.WebsiteID, &a.AlertType, &a.Message,
			&a.Severity, &a.CreatedAt, &resolved); err != nil {
			return nil, fmt.Errorf("scanning website alert: %w", err)
		}
		a.ResolvedAt = ptrInt64(resolved)
		out = append(out, a)
	}
	return out, rows.Err()
}
