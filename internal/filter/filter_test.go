package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var incidents = []Fields{
	{"id": "INC-1", "priority": "Critical", "status": "Open", "age_hours": 2},
	{"id": "INC-2", "priority": "High", "status": "In Progress", "age_hours": 30},
	{"id": "INC-3", "priority": "Critical", "status": "Resolved", "age_hours": 50},
	{"id": "INC-4", "priority": "Low", "status": "Closed", "age_hours": 400},
	{"id": "INC-5", "priority": "Medium", "status": "Open", "age_hours": 12.5},
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		canon string
	}{
		{"single string", "priority = 'Critical'", "priority = 'Critical'"},
		{"double quotes", `status != "Closed"`, "status != 'Closed'"},
		{"number", "cpu_pct >= 85", "cpu_pct >= 85"},
		{"decimal", "cost < 12.5", "cost < 12.5"},
		{"negative", "delta > -3", "delta > -3"},
		{"conjunction", "a = 'x' AND b <= 3", "a = 'x' AND b <= 3"},
		{"lowercase and", "a = 'x' and b = 'y'", "a = 'x' AND b = 'y'"},
		{"no spaces", "a='x'", "a = 'x'"},
		{"dotted field", "tags.env = 'production'", "tags.env = 'production'"},
		{"string with spaces", "status = 'In Progress'", "status = 'In Progress'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.canon, q.String())
		})
	}
}

func TestParse_Empty(t *testing.T) {
	for _, expr := range []string{"", "   "} {
		q, err := Parse(expr)
		require.NoError(t, err)
		assert.Empty(t, q.Terms)
		assert.Equal(t, len(incidents), Count(incidents, q))
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	for _, expr := range []string{
		"priority",
		"priority =",
		"= 'Critical'",
		"priority == 'Critical'",
		"priority = Critical",
		"a = 1 AND",
		"a = 1 OR b = 2",
		"a = 'unterminated",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
	assert.NotPanics(t, func() { MustParse("a = 1") })
}

func TestCount_CriticalIncidents(t *testing.T) {
	q := MustParse("priority = 'Critical'")

	want := 0
	for _, inc := range incidents {
		if inc["priority"] == "Critical" {
			want++
		}
	}
	assert.Equal(t, want, Count(incidents, q))
	assert.Equal(t, 2, Count(incidents, q))
}

func TestCount_Conjunction(t *testing.T) {
	q := MustParse("priority = 'Critical' AND status != 'Resolved'")
	assert.Equal(t, 1, Count(incidents, q))
}

func TestSelect_PreservesOrder(t *testing.T) {
	got := Select(incidents, MustParse("status = 'Open'"))
	require.Len(t, got, 2)
	assert.Equal(t, "INC-1", got[0]["id"])
	assert.Equal(t, "INC-5", got[1]["id"])
}

func TestMatch_Numeric(t *testing.T) {
	tests := []struct {
		expr string
		want int
	}{
		{"age_hours > 24", 3},
		{"age_hours >= 50", 2},
		{"age_hours < 12.5", 1},
		{"age_hours <= 12.5", 2},
		{"age_hours = 400", 1},
		{"age_hours != 400", 4},
		{"age_hours = '400'", 1},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, Count(incidents, MustParse(tt.expr)))
		})
	}
}

func TestMatch_NumericBeatsLexical(t *testing.T) {
	r := Fields{"n": "9"}
	assert.True(t, MustParse("n < 10").Match(r), "9 < 10 numerically even though '9' > '10' lexically")
}

func TestMatch_StringOrdering(t *testing.T) {
	r := Fields{"name": "beta"}
	assert.True(t, MustParse("name > 'alpha'").Match(r))
	assert.False(t, MustParse("name < 'alpha'").Match(r))
}

func TestMatch_CaseSensitive(t *testing.T) {
	assert.False(t, MustParse("priority = 'critical'").Match(incidents[0]))
}

func TestMatch_UnknownFieldNeverMatches(t *testing.T) {
	assert.Equal(t, 0, Count(incidents, MustParse("owner = 'x'")))
	assert.Equal(t, 0, Count(incidents, MustParse("owner != 'x'")))
}

func TestMatch_Types(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := Fields{
		"enabled": true,
		"count":   int64(7),
		"small":   int32(3),
		"ratio":   float32(0.5),
		"seen":    now,
	}
	assert.True(t, MustParse("enabled = 'true'").Match(r))
	assert.True(t, MustParse("count = 7").Match(r))
	assert.True(t, MustParse("small < 4").Match(r))
	assert.True(t, MustParse("ratio = 0.5").Match(r))
	assert.True(t, MustParse("seen >= 1700000000").Match(r))
}

func TestMatch_NilQuery(t *testing.T) {
	var q *Query
	assert.True(t, q.Match(incidents[0]))
	assert.Equal(t, "", q.String())
}

func TestSum(t *testing.T) {
	recs := []Fields{
		{"status": "open", "savings": 35.0},
		{"status": "open", "savings": 18.5},
		{"status": "applied", "savings": 120.0},
		{"status": "open"},
		{"status": "open", "savings": "n/a"},
	}
	assert.InDelta(t, 53.5, Sum(recs, MustParse("status = 'open'"), "savings"), 0.001)
	assert.InDelta(t, 173.5, Sum(recs, nil, "savings"), 0.001)
}

func FuzzParse(f *testing.F) {
	f.Add("priority = 'Critical'")
	f.Add("a = 1 AND b != 'x'")
	f.Add("cpu >= -3.5")
	f.Add("")
	f.Add("'")

	f.Fuzz(func(t *testing.T, expr string) {
		q, err := Parse(expr)
		if err != nil {
			assert.ErrorIs(t, err, ErrSyntax)
			return
		}
		// Canonical output must reparse to the same canonical output.
		again, err := Parse(q.String())
		if err != nil {
			return
		}
		assert.Equal(t, q.String(), again.String())
		_ = q.Match(Fields{"a": 1})
	})
}

func BenchmarkParse(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		if _, err := Parse("priority = 'Critical' AND status != 'Closed' AND age >= 3"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSelect(b *testing.B) {
	recs := make([]Fields, 500)
	for i := range recs {
		recs[i] = Fields{"status": []string{"open", "closed"}[i%2], "cpu": float64(i % 100)}
	}
	q := MustParse("status = 'open' AND cpu > 50")
	b.ReportAllocs()
	for b.Loop() {
		_ = Select(recs, q)
	}
}
