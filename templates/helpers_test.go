package templates

import (
	"strings"
	"testing"
	"time"

	"github.com/ioc-platform/ioc/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestFormatMB(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{"zero", 0, "0 MB"},
		{"megabytes", 512, "512 MB"},
		{"gigabytes", 1536, "1.5 GB"},
		{"terabytes", 3 * 1024 * 1024, "3.0 TB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatMB(tt.input))
		})
	}
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "42%", FormatPct(42.3))
	assert.Equal(t, "0%", FormatPct(0))
	assert.Equal(t, "100%", FormatPct(100.0))
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "$0.00"},
		{12.5, "$12.50"},
		{1234.56, "$1,234.56"},
		{1234567, "$1,234,567.00"},
		{0.999, "$1.00"},
		{-45.1, "-$45.10"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatMoney(tt.input))
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30s", FormatDuration(30*time.Second))
	assert.Equal(t, "5m 30s", FormatDuration(5*time.Minute+30*time.Second))
	assert.Equal(t, "2h 15m", FormatDuration(2*time.Hour+15*time.Minute))
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "245 ms", FormatMillis(245))
	assert.Equal(t, "1.50 s", FormatMillis(1500))
}

func TestFormatAge(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "never", FormatAge(0))
	assert.Equal(t, "5m", FormatAge(now.Add(-5*time.Minute).Unix()))
	assert.Equal(t, "3h", FormatAge(now.Add(-3*time.Hour).Unix()))
	assert.Equal(t, "2d", FormatAge(now.Add(-49*time.Hour).Unix()))
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC).Unix()
	assert.Equal(t, "2026-02-01 09:30", FormatTime(ts))
	assert.Equal(t, "--", FormatTime(0))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2026-02-01", FormatDate(time.Date(2026, 2, 1, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "--", FormatDate(time.Time{}))
}

func TestDaysLeftAndExpiryClass(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 10, DaysLeft(now.Add(10*24*time.Hour).Unix(), now))
	assert.Equal(t, -1, DaysLeft(now.Add(-time.Hour).Unix(), now))

	assert.Equal(t, "status-critical", ExpiryClass(-1))
	assert.Equal(t, "status-warning", ExpiryClass(0))
	assert.Equal(t, "status-warning", ExpiryClass(30))
	assert.Equal(t, "status-ok", ExpiryClass(31))
}

func TestStatusClass(t *testing.T) {
	tests := map[string]string{
		"online":        "status-ok",
		"Running":       "status-ok",
		"compliant":     "status-ok",
		"In Progress":   "status-warning",
		"degraded":      "status-warning",
		"modified":      "status-warning",
		"down":          "status-critical",
		"non_compliant": "status-critical",
		"red":           "status-critical",
		"bogus":         "status-unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, StatusClass(in), in)
	}
}

func TestSeverityClass(t *testing.T) {
	assert.Equal(t, "status-critical", SeverityClass("Critical"))
	assert.Equal(t, "status-critical", SeverityClass("high"))
	assert.Equal(t, "status-warning", SeverityClass("warning"))
	assert.Equal(t, "status-ok", SeverityClass("low"))
	assert.Equal(t, "status-unknown", SeverityClass(""))
}

func TestProgressBarWidth(t *testing.T) {
	assert.Equal(t, 50.0, ProgressBarWidth(50))
	assert.Equal(t, 100.0, ProgressBarWidth(150))
	assert.Equal(t, 0.0, ProgressBarWidth(-10))
}

func TestBarStyle(t *testing.T) {
	assert.Equal(t, "width: 42.5%", BarStyle(42.5))
	assert.Equal(t, "width: 100%", BarStyle(130))
	assert.Equal(t, "width: 0%", BarStyle(-1))
}

func TestYesNo(t *testing.T) {
	assert.Equal(t, "yes", YesNo(true))
	assert.Equal(t, "no", YesNo(false))
}

func TestProgressBarClass(t *testing.T) {
	assert.Equal(t, "bar-ok", ProgressBarClass(50))
	assert.Equal(t, "bar-warning", ProgressBarClass(80))
	assert.Equal(t, "bar-critical", ProgressBarClass(95))
}

func TestUsagePct(t *testing.T) {
	assert.InDelta(t, 50.0, UsagePct(512, 1024), 0.01)
	assert.Equal(t, 0.0, UsagePct(100, 0))
	assert.InDelta(t, 75.0, FillPct(15, 20), 0.01)
}

func TestOldestPoll(t *testing.T) {
	assert.Equal(t, "never", OldestPoll(nil))

	now := time.Now()
	polls := map[string]time.Time{
		"loader":    now.Add(-10 * time.Second),
		"wpm-probe": now.Add(-90 * time.Second),
	}
	assert.Contains(t, OldestPoll(polls), "ago")
	assert.Equal(t, "90s ago", OldestPoll(polls))
}

func TestInt64Deref(t *testing.T) {
	v := int64(42)
	assert.Equal(t, int64(42), Int64Deref(&v))
	assert.Equal(t, int64(0), Int64Deref(nil))
}

func TestSparklinePolyline(t *testing.T) {
	assert.Empty(t, SparklinePolyline(nil, 100, 20))

	single := []model.SeriesPoint{{Timestamp: 1, Value: 5}}
	assert.Equal(t, "50.0,20.0", SparklinePolyline(single, 100, 20))

	points := []model.SeriesPoint{{Value: 0}, {Value: 10}, {Value: 5}}
	assert.Equal(t, "0.0,20.0 50.0,0.0 100.0,10.0", SparklinePolyline(points, 100, 20))

	flat := []model.SeriesPoint{{Value: 3}, {Value: 3}}
	assert.Equal(t, "0.0,20.0 100.0,20.0", SparklinePolyline(flat, 100, 20))
}

func BenchmarkSparklinePolyline(b *testing.B) {
	points := make([]model.SeriesPoint, 288)
	for i := range points {
		points[i] = model.SeriesPoint{Timestamp: int64(i) * 300, Value: float64(i % 37)}
	}
	b.ReportAllocs()
	for b.Loop() {
		_ = SparklinePolyline(points, 120, 24)
	}
}

func FuzzSparklinePolyline(f *testing.F) {
	f.Add(1.0, 2.0, 3.0)
	f.Add(0.0, 0.0, 0.0)
	f.Add(-5.0, 1e9, 0.5)

	f.Fuzz(func(t *testing.T, a, b, c float64) {
		points := []model.SeriesPoint{{Value: a}, {Value: b}, {Value: c}}
		out := SparklinePolyline(points, 100, 20)
		assert.Len(t, strings.Fields(out), 3)
	})
}
