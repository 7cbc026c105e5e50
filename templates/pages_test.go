package templates

import (
	"bytes"
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/docs"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/sample"
	"github.com/ioc-platform/ioc/internal/summary"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testPage(title, active string) Page {
	return Page{
		Title:     title,
		Active:    active,
		Site:      docs.Site{Title: "Metro IOC", Organisation: "Metro Rail"},
		Now:       testNow,
		LastPoll:  map[string]time.Time{"loader": testNow},
		Documents: []docs.Entry{{Slug: "siem-brochure", Title: "SIEM"}},
	}
}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

// ----------------------------------------------------------------------------
// Layout
// ----------------------------------------------------------------------------

func TestLayout(t *testing.T) {
	html := render(t, Error(ErrorData{Page: testPage("Not found", ""), Status: 404, Message: "no such page"}))

	assert.Contains(t, html, "<title>Not found | Metro IOC</title>")
	assert.Contains(t, html, "Metro Rail")
	assert.Contains(t, html, `href="/docs/siem-brochure"`)
	assert.Contains(t, html, "Generated 2026-03-02 09:00:00 UTC")
	assert.Contains(t, html, "404")
	assert.Contains(t, html, "no such page")
}

func TestLayout_ActiveNav(t *testing.T) {
	html := render(t, Monitor(MonitorData{Page: testPage("Server Monitor", "/monitor")}))
	assert.Contains(t, html, `href="/monitor" class="active"`)
	assert.NotContains(t, html, `href="/vman" class="active"`)
}

func TestLayout_WrapsPageBody(t *testing.T) {
	html := render(t, Error(ErrorData{Page: testPage("Oops", ""), Status: 500, Message: "failed"}))

	main := html[strings.Index(html, "<main>"):strings.Index(html, "</main>")]
	assert.Contains(t, main, "<h1>Oops</h1>")
	assert.Contains(t, main, `<section class="error">`)
	assert.Equal(t, 1, strings.Count(html, "<html"))
}

func TestLayout_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Error(ErrorData{Page: testPage("Oops", "")}).Render(ctx, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPages_EscapeData(t *testing.T) {
	html := render(t, ServiceDesk(ServiceDeskData{
		Page:      testPage("Service Desk", "/servicedesk"),
		Incidents: []sample.Incident{{ID: "INC-1", Title: `<script>alert("x")</script>`, Priority: "High", Status: "Open"}},
		Filter:    `title = "<b>"`,
	}))
	assert.NotContains(t, html, `<script>alert`)
	assert.Contains(t, html, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;")
	assert.Contains(t, html, `value="title = &#34;&lt;b&gt;&#34;"`)
}

func TestBar_WidthAndClass(t *testing.T) {
	html := render(t, bar(96))
	assert.Contains(t, html, `class="bar-critical"`)
	assert.Contains(t, html, `style="width: 96%;"`)
}

// ----------------------------------------------------------------------------
// Pages
// ----------------------------------------------------------------------------

func TestOverview(t *testing.T) {
	d := sample.Load(testNow)
	ov := summary.Compute(d, cache.New().Snapshot(), testNow)

	html := render(t, Overview(OverviewData{
		Page:    testPage("Overview", "/"),
		Summary: ov,
		Alerts: []model.AlertRecord{
			{Timestamp: testNow.Unix(), Severity: "critical", Source: "wpm", Subject: "shop", Message: "shop.example.com is down"},
		},
	}))
	assert.Contains(t, html, `data-chart="incidents-by-priority"`)
	assert.Contains(t, html, "shop.example.com is down")
}

func TestStaticDataPages(t *testing.T) {
	d := sample.Load(testNow)

	t.Run("servicedesk", func(t *testing.T) {
		html := render(t, ServiceDesk(ServiceDeskData{
			Page:        testPage("Service Desk", "/servicedesk"),
			Summary:     summary.ComputeServiceDesk(d.Incidents),
			Incidents:   d.Incidents,
			Filter:      `priority = "Critical"`,
			FilterError: "unexpected token",
		}))
		require.NotEmpty(t, d.Incidents)
		assert.Contains(t, html, d.Incidents[0].Title)
		assert.Contains(t, html, "unexpected token")
	})

	t.Run("assets", func(t *testing.T) {
		html := render(t, Assets(AssetsData{
			Page:    testPage("Assets", "/assets"),
			Summary: summary.ComputeAssets(d.Assets),
			Assets:  d.Assets,
		}))
		require.NotEmpty(t, d.Assets)
		assert.Contains(t, html, d.Assets[0].Tag)
	})

	t.Run("monitor", func(t *testing.T) {
		html := render(t, Monitor(MonitorData{
			Page:    testPage("Server Monitor", "/monitor"),
			Summary: summary.ComputeMonitor(d.Servers),
			Servers: d.Servers,
		}))
		require.NotEmpty(t, d.Servers)
		assert.Contains(t, html, d.Servers[0].Name)
	})

	t.Run("training", func(t *testing.T) {
		html := render(t, Training(TrainingData{
			Page:    testPage("Training", "/training"),
			Summary: summary.ComputeTraining(d.Courses),
			Courses: d.Courses,
		}))
		require.NotEmpty(t, d.Courses)
		assert.Contains(t, html, d.Courses[0].Title)
		assert.Contains(t, html, "Course material")
	})
}

func TestCachePages_Empty(t *testing.T) {
	snap := cache.New().Snapshot()

	render(t, VMAN(VMANData{Page: testPage("Virtualization", "/vman"), Summary: summary.ComputeVMAN(snap)}))
	render(t, WPM(WPMData{Page: testPage("Web Performance", "/wpm"), Summary: summary.ComputeWPM(snap, testNow)}))
	render(t, SCM(SCMData{Page: testPage("Configuration", "/scm"), Summary: summary.ComputeSCM(snap, testNow)}))
}

func TestWPM_Sparkline(t *testing.T) {
	html := render(t, WPM(WPMData{
		Page: testPage("Web Performance", "/wpm"),
		Websites: []WebsiteRow{{
			Website: model.Website{ID: 1, Name: "Shop", URL: "https://shop.example.com"},
			Series:  []model.SeriesPoint{{Timestamp: 1, Value: 100}, {Timestamp: 2, Value: 300}},
		}},
	}))
	assert.Contains(t, html, "https://shop.example.com")
	assert.Contains(t, html, "0.0,")
}

func TestServer(t *testing.T) {
	html := render(t, Server(ServerData{
		Page: testPage("web-01", "/scm"),
		Detail: &model.ServerDetail{
			Server: model.Server{ID: 3, Hostname: "web-01", ComplianceStatus: "non_compliant"},
			Files:  []model.FileIntegrity{{Path: "/etc/ssh/sshd_config", Status: "modified"}},
		},
	}))
	assert.Contains(t, html, "web-01")
	assert.Contains(t, html, "/etc/ssh/sshd_config")
	assert.Contains(t, html, "No changes recorded.")
}

func TestSCADA(t *testing.T) {
	state := rail.DefaultLayout()

	html := render(t, SCADA(SCADAData{Page: testPage("SCADA", "/scada"), Enabled: true, State: state, TokenRequired: true}))
	assert.Contains(t, html, `data-action="emergency_stop"`)
	assert.Contains(t, html, `data-target="S1"`)
	assert.Contains(t, html, "Central Home")
	assert.Contains(t, html, `id="operator-token"`)

	disabled := render(t, SCADA(SCADAData{Page: testPage("SCADA", "/scada")}))
	assert.Contains(t, disabled, "disabled")
	assert.NotContains(t, disabled, `data-action=`)
}

func TestDocument(t *testing.T) {
	r, err := docs.NewRenderer(nil, docs.Site{})
	require.NoError(t, err)
	defer r.Close()

	doc, err := r.Render("siem-brochure")
	require.NoError(t, err)

	html := render(t, Document(DocumentData{Page: testPage(doc.Title, ""), Doc: doc}))
	assert.Contains(t, html, `href="#capabilities"`)
	assert.Contains(t, html, "<table>")
}

func TestStatic(t *testing.T) {
	for _, name := range []string{"style.css", "app.js"} {
		_, err := fs.Stat(Static(), name)
		assert.NoError(t, err, name)
	}
}
