package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig defines how long to keep rows in each append-only table.
type RetentionConfig struct {
	WebsiteChecks time.Duration // default 7d
	AlertLog      time.Duration // default 30d
	AuditLog      time.Duration // default 90d
}

// DefaultRetention returns the default retention periods.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		WebsiteChecks: 7 * 24 * time.Hour,
		AlertLog:      30 * 24 * time.Hour,
		AuditLog:      90 * 24 * time.Hour,
	}
}

// Pruner periodically removes old data from the store.
type Pruner struct {
	store     *Store
	retention RetentionConfig
	interval  time.Duration
	now       func() time.Time
}

// NewPruner creates a pruner with the given retention config. A non-positive
// interval falls back to hourly.
func NewPruner(store *Store, retention RetentionConfig, interval time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Run starts the pruner loop. It blocks until the context is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	slog.Info("pruner started", "interval", p.interval)

	p.Prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pruner stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Prune()
		}
	}
}

// Prune deletes rows older than their table's retention and returns the
// number of rows removed per table.
func (p *Pruner) Prune() map[string]int64 {
	now := p.now().Unix()
	tables := []struct {
		name      string
		column    string
		retention time.Duration
	}{
		{"wpm_checks", "checked_at", p.retention.WebsiteChecks},
		{"ioc_alert_log", "ts", p.retention.AlertLog},
		{"ioc_audit_log", "ts", p.retention.AuditLog},
	}

	removed := make(map[string]int64, len(tables))
	for _, t := range tables {
		if t.retention <= 0 {
			continue
		}
		cutoff := now - int64(t.retention.Seconds())
		result, err := p.store.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.name, t.column), cutoff)
		if err != nil {
			slog.Error("pruning failed", "table", t.name, "error", err)
			continue
		}
		rows, _ := result.RowsAffected()
		removed[t.name] = rows
		if rows > 0 {
			slog.Info("pruned old data", "table", t.name, "rows", rows)
		}
	}
	return removed
}
