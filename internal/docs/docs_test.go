package docs

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeSettings) Settings() (map[string]string, error) {
	f.calls++
	return f.values, f.err
}

func newTestRenderer(t *testing.T, s SettingsReader) *Renderer {
	t.Helper()
	r, err := NewRenderer(s, Site{})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestSite_FromSettings(t *testing.T) {
	r := newTestRenderer(t, &fakeSettings{values: map[string]string{
		"site_title":   "Metro Operations Centre",
		"organisation": "Metro Rail",
	}})

	site := r.Site()
	assert.Equal(t, "Metro Operations Centre", site.Title)
	assert.Equal(t, "Metro Rail", site.Organisation)
}

func TestSite_Fallbacks(t *testing.T) {
	tests := []struct {
		name     string
		settings SettingsReader
	}{
		{"nil reader", nil},
		{"read error", &fakeSettings{err: errors.New("no such table: ioc_settings")}},
		{"missing keys", &fakeSettings{values: map[string]string{}}},
		{"blank values", &fakeSettings{values: map[string]string{"site_title": "  ", "organisation": ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, tt.settings)
			assert.Equal(t, Site{Title: DefaultTitle, Organisation: DefaultOrganisation}, r.Site())
		})
	}
}

func TestSite_ConfiguredDefaults(t *testing.T) {
	r, err := NewRenderer(&fakeSettings{err: errors.New("down")}, Site{Title: "Harbour IOC"})
	require.NoError(t, err)
	defer r.Close()

	site := r.Site()
	assert.Equal(t, "Harbour IOC", site.Title)
	assert.Equal(t, DefaultOrganisation, site.Organisation)
}

func TestList(t *testing.T) {
	r := newTestRenderer(t, nil)

	entries := r.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "architecture-review", entries[0].Slug)
	assert.Equal(t, "siem-brochure", entries[1].Slug)
	assert.Equal(t, "training-guide", entries[2].Slug)
	assert.Equal(t, DefaultTitle+": Architecture Review", entries[0].Title)
}

func TestRender_Brochure(t *testing.T) {
	r := newTestRenderer(t, &fakeSettings{values: map[string]string{
		"site_title":   "Metro IOC",
		"organisation": "Metro Rail",
	}})

	doc, err := r.Render("siem-brochure")
	require.NoError(t, err)

	assert.Equal(t, "siem-brochure", doc.Slug)
	assert.Equal(t, "Metro IOC: Security Information and Event Management", doc.Title)
	assert.Equal(t, "Metro Rail", doc.Site.Organisation)

	html := string(doc.HTML)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<em>Presented by Metro Rail</em>")
	assert.NotContains(t, html, "{{site_title}}")
	assert.NotContains(t, html, "{{organisation}}")

	require.NotEmpty(t, doc.Headings)
	assert.Equal(t, "Capabilities", doc.Headings[0].Text)
	assert.Equal(t, "capabilities", doc.Headings[0].ID)
	assert.Contains(t, html, `id="capabilities"`)
}

func TestRender_AllDocuments(t *testing.T) {
	r := newTestRenderer(t, nil)
	for _, e := range r.List() {
		t.Run(e.Slug, func(t *testing.T) {
			doc, err := r.Render(e.Slug)
			require.NoError(t, err)
			assert.Equal(t, e.Title, doc.Title)
			assert.True(t, strings.HasPrefix(doc.Title, DefaultTitle))
		})
	}
}

func TestRender_NotFound(t *testing.T) {
	r := newTestRenderer(t, nil)

	for _, slug := range []string{"", "missing", "../docs", "content/siem-brochure", "siem-brochure.md"} {
		_, err := r.Render(slug)
		assert.ErrorIs(t, err, ErrNotFound, slug)
	}
}

func TestRender_CacheKeyedBySettings(t *testing.T) {
	s := &fakeSettings{values: map[string]string{"site_title": "First"}}
	r := newTestRenderer(t, s)

	doc, err := r.Render("training-guide")
	require.NoError(t, err)
	assert.Equal(t, "First: Operator Training Guide", doc.Title)
	r.cache.Wait()

	again, err := r.Render("training-guide")
	require.NoError(t, err)
	assert.Same(t, doc, again, "second render should come from the cache")

	s.values = map[string]string{"site_title": "Second"}
	changed, err := r.Render("training-guide")
	require.NoError(t, err)
	assert.Equal(t, "Second: Operator Training Guide", changed.Title)
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "Title", firstHeading([]byte("intro\n# Title\n## Sub")))
	assert.Equal(t, "", firstHeading([]byte("## only sub")))
}
