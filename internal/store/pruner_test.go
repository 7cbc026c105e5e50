package store

import (
	"context"
	"testing"
	"time"

	"github.com/ioc-platform/ioc/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetention(t *testing.T) {
	r := DefaultRetention()
	assert.Equal(t, 7*24*time.Hour, r.WebsiteChecks)
	assert.Equal(t, 30*24*time.Hour, r.AlertLog)
	assert.Equal(t, 90*24*time.Hour, r.AuditLog)
}

func TestNewPruner(t *testing.T) {
	s := newTestStore(t)
	r := DefaultRetention()

	p := NewPruner(s, r, 0)
	assert.Equal(t, s, p.store)
	assert.Equal(t, r, p.retention)
	assert.Equal(t, time.Hour, p.interval)

	p = NewPruner(s, r, 5*time.Minute)
	assert.Equal(t, 5*time.Minute, p.interval)
}

func TestPrunerRun_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s, DefaultRetention(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrune_DeletesOldData(t *testing.T) {
	s := newTestStore(t)
	site := insertWebsite(t, s, "Portal", "https://portal.example.com")

	now := time.Now()
	old := now.Add(-8 * 24 * time.Hour).Unix()
	veryOld := now.Add(-100 * 24 * time.Hour).Unix()

	require.NoError(t, s.RecordWebsiteCheck(model.WebsiteCheck{WebsiteID: site, CheckedAt: old, Status: model.SiteUp}))
	require.NoError(t, s.RecordWebsiteCheck(model.WebsiteCheck{WebsiteID: site, CheckedAt: now.Unix(), Status: model.SiteUp}))
	require.NoError(t, s.InsertAlert(veryOld, "website_down", "wpm", "Portal", "old", "critical"))
	require.NoError(t, s.InsertAlert(old, "website_down", "wpm", "Portal", "recent enough", "critical"))
	require.NoError(t, s.InsertAudit(model.AuditRecord{Timestamp: veryOld, Actor: "op", Action: "emergency_stop"}))

	p := NewPruner(s, DefaultRetention(), 0)
	p.now = func() time.Time { return now }
	removed := p.Prune()

	assert.Equal(t, int64(1), removed["wpm_checks"])
	assert.Equal(t, int64(1), removed["ioc_alert_log"])
	assert.Equal(t, int64(1), removed["ioc_audit_log"])

	checks, err := s.ListWebsiteChecks(site, 10)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, now.Unix(), checks[0].CheckedAt)

	alerts, err := s.ListAlerts(10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "recent enough", alerts[0].Message)
}

func TestPrune_ZeroRetentionKeepsEverything(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertAlert(1, "x", "wpm", "s", "ancient", "info"))

	p := NewPruner(s, RetentionConfig{}, 0)
	removed := p.Prune()
	assert.Empty(t, removed)

	n, err := s.CountRows("ioc_alert_log")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrune_ClosedDB(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s, DefaultRetention(), 0)
	s.Close()

	// Errors are logged, not returned.
	assert.NotPanics(t, func() { p.Prune() })
}

func TestPrunerRun_TickerFires(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s, DefaultRetention(), 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
