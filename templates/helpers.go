package templates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ioc-platform/ioc/internal/model"
)

// FormatMB formats a size given in megabytes.
func FormatMB(mb int64) string {
	const unit = 1024
	if mb < unit {
		return fmt.Sprintf("%d MB", mb)
	}
	div, exp := int64(unit), 0
	for n := mb / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(mb)/float64(div), units[exp])
}

// FormatPct formats a 0-100 percentage.
func FormatPct(v float64) string {
	return fmt.Sprintf("%.0f%%", v)
}

// FormatMoney formats a monthly cost or saving.
func FormatMoney(v float64) string {
	neg := v < 0
	v = math.Abs(v)
	whole := int64(v)
	cents := int64(math.Round((v - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("$%s.%02d", b.String(), cents)
	if neg {
		return "-" + out
	}
	return out
}

// FormatDuration formats a duration into human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatMillis formats a response time in milliseconds.
func FormatMillis(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return fmt.Sprintf("%.2f s", float64(ms)/1000)
}

// FormatAge formats a unix timestamp as "Xm", "Xh" or "Xd" before now.
func FormatAge(unixTS int64) string {
	if unixTS == 0 {
		return "never"
	}
	age := time.Since(time.Unix(unixTS, 0))
	if age < time.Hour {
		return fmt.Sprintf("%dm", int(age.Minutes()))
	}
	if age < 24*time.Hour {
		return fmt.Sprintf("%dh", int(age.Hours()))
	}
	return fmt.Sprintf("%dd", int(age.Hours()/24))
}

// FormatTime formats a unix timestamp.
func FormatTime(unixTS int64) string {
	if unixTS == 0 {
		return "--"
	}
	return time.Unix(unixTS, 0).UTC().Format("2006-01-02 15:04")
}

// FormatDate formats a time as a calendar date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	return t.UTC().Format("2006-01-02")
}

// DaysLeft returns whole days from now until the unix timestamp. Negative
// values are days since expiry.
func DaysLeft(unixTS int64, now time.Time) int {
	return int(math.Floor(time.Unix(unixTS, 0).Sub(now).Hours() / 24))
}

// ExpiryClass returns a CSS class for a certificate or warranty expiry.
func ExpiryClass(days int) string {
	switch {
	case days < 0:
		return "status-critical"
	case days <= 30:
		return "status-warning"
	default:
		return "status-ok"
	}
}

// StatusClass maps the status values used across the dashboards to a CSS
// class.
func StatusClass(status string) string {
	switch strings.ToLower(status) {
	case "online", "running", "up", "healthy", "compliant", "unchanged",
		"success", "resolved", "closed", "applied", "in use", "green":
		return "status-ok"
	case "warning", "degraded", "maintenance", "suspended", "modified", "new",
		"in progress", "medium", "high", "yellow", "open":
		return "status-warning"
	case "offline", "down", "stopped", "critical", "non_compliant", "missing",
		"failure", "terminated", "red", "emergency":
		return "status-critical"
	default:
		return "status-unknown"
	}
}

// SeverityClass returns a CSS class for an alert or recommendation severity.
func SeverityClass(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return "status-critical"
	case "warning", "medium":
		return "status-warning"
	case "info", "low":
		return "status-ok"
	default:
		return "status-unknown"
	}
}

// ProgressBarWidth returns a width percentage capped at 100.
func ProgressBarWidth(pct float64) float64 {
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// BarStyle is the inline width of a usage gauge.
func BarStyle(pct float64) string {
	return "width: " + strconv.FormatFloat(ProgressBarWidth(pct), 'f', -1, 64) + "%"
}

// ProgressBarClass returns CSS class based on usage percentage.
func ProgressBarClass(pct float64) string {
	if pct >= 90 {
		return "bar-critical"
	}
	if pct >= 75 {
		return "bar-warning"
	}
	return "bar-ok"
}

// UsagePct returns used/total as a 0-100 percentage.
func UsagePct(used, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

// FillPct returns filled/capacity as a 0-100 percentage.
func FillPct(filled, capacity int) float64 {
	return UsagePct(int64(filled), int64(capacity))
}

// YesNo renders a flag for a table cell.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// OldestPoll returns the time since the oldest poll.
func OldestPoll(lastPoll map[string]time.Time) string {
	if len(lastPoll) == 0 {
		return "never"
	}
	var oldest time.Time
	for _, t := range lastPoll {
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	ago := time.Since(oldest)
	return fmt.Sprintf("%ds ago", int(ago.Seconds()))
}

// Int64Deref safely dereferences an *int64, returning 0 if nil.
func Int64Deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// SparklinePolyline returns SVG polyline points string from series data,
// normalized to fit within a width x height viewBox.
func SparklinePolyline(points []model.SeriesPoint, width, height float64) string {
	if len(points) == 0 {
		return ""
	}

	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if p.Value < minVal {
			minVal = p.Value
		}
		if p.Value > maxVal {
			maxVal = p.Value
		}
	}
	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1 // avoid division by zero for flat lines
	}

	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte(' ')
		}
		x := width / 2
		if len(points) > 1 {
			x = float64(i) / float64(len(points)-1) * width
		}
		y := height - (p.Value-minVal)/valRange*height // invert Y for SVG
		fmt.Fprintf(&b, "%.1f,%.1f", x, y)
	}
	return b.String()
}
