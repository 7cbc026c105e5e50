// Package api serves the IOC dashboard pages and the JSON API behind them.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/ioc-platform/ioc/docs/swagger"
	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/docs"
	"github.com/ioc-platform/ioc/internal/filter"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/sample"
	"github.com/ioc-platform/ioc/internal/store"
	"github.com/ioc-platform/ioc/internal/summary"
	"github.com/ioc-platform/ioc/templates"
)

const seriesWindow = 24 * time.Hour

// Options holds the optional collaborators of a Server.
type Options struct {
	// Sample is the static service desk, asset, monitor and training data.
	// When nil it is regenerated per request relative to the current time.
	Sample *sample.Data
	// Docs renders the embedded documents. Nil disables /docs.
	Docs *docs.Renderer
	// Rail is the SCADA simulator. Nil disables the rail endpoints.
	Rail *rail.Controller
	// JWTSecret, when set, is required to sign operator tokens for
	// POST /api/rail/actions.
	JWTSecret string
}

// Server is the HTTP server for the IOC dashboards.
type Server struct {
	cache  *cache.Cache
	store  *store.Store
	sample *sample.Data
	docs   *docs.Renderer
	rail   *rail.Controller
	secret []byte
	now    func() time.Time
	mux    *http.ServeMux
	server *http.Server
}

// sampleData returns the fixed sample data, or a fresh set anchored at the
// current time so ages and due dates keep moving.
func (s *Server) sampleData() *sample.Data {
	if s.sample != nil {
		return s.sample
	}
	return sample.Load(s.now())
}

// NewServer creates a new HTTP server.
func NewServer(addr string, c *cache.Cache, s *store.Store, opts Options) *Server {
	srv := &Server{
		cache:  c,
		store:  s,
		sample: opts.Sample,
		docs:   opts.Docs,
		rail:   opts.Rail,
		now:    time.Now,
		mux:    http.NewServeMux(),
	}
	if opts.JWTSecret != "" {
		srv.secret = []byte(opts.JWTSecret)
	}
	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(http.HandlerFunc(s.route))))
}

// route dispatches through the mux. Requests that match no pattern get the
// HTML error page instead of the mux's plain-text 404; method mismatches
// keep the mux's 405 and Allow header.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if _, pattern := s.mux.Handler(r); pattern != "" {
		s.mux.ServeHTTP(w, r)
		return
	}
	nf := &notFoundWriter{ResponseWriter: w}
	s.mux.ServeHTTP(nf, r)
	if nf.notFound {
		s.renderErrorPage(w, r, fmt.Errorf("page %s: %w", r.URL.Path, store.ErrNotFound))
	}
}

// notFoundWriter swallows a 404 written by the mux so the caller can
// replace it. Any other status passes through untouched.
type notFoundWriter struct {
	http.ResponseWriter
	notFound bool
}

func (w *notFoundWriter) WriteHeader(code int) {
	if code == http.StatusNotFound {
		w.notFound = true
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *notFoundWriter) Write(b []byte) (int, error) {
	if w.notFound {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("HTTP server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(templates.Static())))

	// Pages
	s.mux.HandleFunc("GET /{$}", s.handleOverview)
	s.mux.HandleFunc("GET /vman", s.handleVMAN)
	s.mux.HandleFunc("GET /wpm", s.handleWPM)
	s.mux.HandleFunc("GET /scm", s.handleSCM)
	s.mux.HandleFunc("GET /scm/{id}", s.handleServer)
	s.mux.HandleFunc("GET /servicedesk", s.handleServiceDesk)
	s.mux.HandleFunc("GET /assets", s.handleAssets)
	s.mux.HandleFunc("GET /monitor", s.handleMonitor)
	s.mux.HandleFunc("GET /training", s.handleTraining)
	s.mux.HandleFunc("GET /scada", s.handleSCADA)
	s.mux.HandleFunc("GET /docs/{slug}", s.handleDocument)

	// API endpoints (JSON)
	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/vman/hypervisors", s.handleHypervisors)
	s.mux.HandleFunc("GET /api/vman/vms", s.handleVMs)
	s.mux.HandleFunc("GET /api/vman/cloud", s.handleCloud)
	s.mux.HandleFunc("GET /api/vman/recommendations", s.handleRecommendations)
	s.mux.HandleFunc("GET /api/wpm/websites", s.handleWebsites)
	s.mux.HandleFunc("GET /api/wpm/websites/{id}/checks", s.handleWebsiteChecks)
	s.mux.HandleFunc("GET /api/scm/servers", s.handleServers)
	s.mux.HandleFunc("GET /api/scm/servers/{id}", s.handleServerDetail)
	s.mux.HandleFunc("GET /api/servicedesk/incidents", s.handleIncidents)
	s.mux.HandleFunc("GET /api/assets", s.handleAssetList)
	s.mux.HandleFunc("GET /api/charts/{name}", s.handleChart)
	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /api/docs", s.handleDocumentList)
	s.mux.HandleFunc("GET /api/rail/state", s.handleRailState)
	s.mux.HandleFunc("POST /api/rail/actions", s.handleRailAction)

	// Health check
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Swagger UI
	s.mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// renderHTML renders a templ component to a buffer first, then writes the
// buffer to the response. This ensures rendering errors can be returned as a
// proper 500 before any bytes reach the client.
func renderHTML(w http.ResponseWriter, r *http.Request, component templ.Component) {
	renderHTMLStatus(w, r, http.StatusOK, component)
}

func renderHTMLStatus(w http.ResponseWriter, r *http.Request, status int, component templ.Component) {
	var buf bytes.Buffer
	if err := component.Render(r.Context(), &buf); err != nil {
		slog.Error("rendering component", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		// Client disconnected after headers sent; nothing to recover.
		slog.Debug("writing HTML response", "path", r.URL.Path, "error", err)
	}
}

// writeJSON marshals v to JSON into a buffer first, then writes it to the
// response. This ensures marshalling errors can be returned as a proper 500.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	writeJSONStatus(w, r, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

// errBadRequest marks malformed path or query parameters.
var errBadRequest = errors.New("bad request")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, filter.ErrSyntax),
		errors.Is(err, rail.ErrUnknownAction),
		errors.Is(err, rail.ErrUnknownTarget),
		errors.Is(err, rail.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, rail.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, docs.ErrNotFound),
		errors.Is(err, summary.ErrUnknownChart):
		return http.StatusNotFound
	case errors.Is(err, rail.ErrInterlock),
		errors.Is(err, rail.ErrEmergencyActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the message safe to show a client. Internal errors
// are logged and replaced with a generic text.
func publicMessage(r *http.Request, status int, err error) string {
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		return "Internal Server Error"
	}
	return err.Error()
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	writeJSONStatus(w, r, status, errorResponse{Error: publicMessage(r, status, err)})
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, raw)
	}
	return id, nil
}

// ----------------------------------------------------------------------------
// Pages
// ----------------------------------------------------------------------------

func (s *Server) site() docs.Site {
	if s.docs == nil {
		return docs.Site{Title: docs.DefaultTitle, Organisation: docs.DefaultOrganisation}
	}
	return s.docs.Site()
}

func (s *Server) page(title, active string, snap cache.CacheSnapshot) templates.Page {
	p := templates.Page{
		Title:    title,
		Active:   active,
		Site:     s.site(),
		Now:      s.now(),
		LastPoll: snap.LastPoll,
	}
	if s.docs != nil {
		p.Documents = s.docs.List()
	}
	return p
}

func (s *Server) renderErrorPage(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	renderHTMLStatus(w, r, status, templates.Error(templates.ErrorData{
		Page:    s.page(http.StatusText(status), "", s.cache.Snapshot()),
		Status:  status,
		Message: publicMessage(r, status, err),
	}))
}

// @Summary Overview page
// @Description Landing page with every dashboard's headline numbers and recent alerts
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router / [get]
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	alerts, err := s.store.ListAlerts(10)
	if err != nil {
		slog.Warn("listing recent alerts", "error", err)
	}
	renderHTML(w, r, templates.Overview(templates.OverviewData{
		Page:    s.page("Overview", "/", snap),
		Summary: summary.Compute(s.sampleData(), snap, s.now()),
		Alerts:  alerts,
	}))
}

// @Summary Virtualization manager page
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /vman [get]
func (s *Server) handleVMAN(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	names := make(map[int64]string, len(snap.Hypervisors))
	for id, h := range snap.Hypervisors {
		names[id] = h.Name
	}
	renderHTML(w, r, templates.VMAN(templates.VMANData{
		Page:            s.page("Virtualization Manager", "/vman", snap),
		Summary:         summary.ComputeVMAN(snap),
		Hypervisors:     snap.HypervisorList(),
		VMs:             snap.VMList(),
		CloudInstances:  snap.CloudList(),
		Recommendations: snap.RecommendationList(),
		Snapshots:       derefAll(snap.Snapshots),
		Datastores:      derefAll(snap.Datastores),
		HypervisorNames: names,
	}))
}

// @Summary Web performance monitor page
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /wpm [get]
func (s *Server) handleWPM(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	now := s.now()
	since := now.Add(-seriesWindow).Unix()

	sites := snap.WebsiteList()
	rows := make([]templates.WebsiteRow, 0, len(sites))
	for _, site := range sites {
		series, err := s.store.QueryResponseSeries(site.ID, since)
		if err != nil {
			slog.Warn("querying response series", "website", site.Name, "error", err)
		}
		rows = append(rows, templates.WebsiteRow{Website: site, Series: series})
	}

	renderHTML(w, r, templates.WPM(templates.WPMData{
		Page:         s.page("Web Performance Monitor", "/wpm", snap),
		Summary:      summary.ComputeWPM(snap, now),
		Websites:     rows,
		Transactions: derefAll(snap.Transactions),
		Alerts:       snap.WebsiteAlertList(),
	}))
}

// @Summary Server configuration monitor page
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /scm [get]
func (s *Server) handleSCM(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	renderHTML(w, r, templates.SCM(templates.SCMData{
		Page:         s.page("Server Configuration Monitor", "/scm", snap),
		Summary:      summary.ComputeSCM(snap, s.now()),
		Servers:      snap.ServerList(),
		Certificates: snap.CertificateList(),
	}))
}

// @Summary Server detail page
// @Produce html
// @Param id path int true "Server ID"
// @Success 200 {string} string "HTML page"
// @Failure 400 {string} string "Invalid ID"
// @Failure 404 {string} string "Server not found"
// @Router /scm/{id} [get]
func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.renderErrorPage(w, r, err)
		return
	}
	detail, err := s.store.GetServerDetail(id)
	if err != nil {
		s.renderErrorPage(w, r, err)
		return
	}
	renderHTML(w, r, templates.Server(templates.ServerData{
		Page:   s.page(detail.Server.Hostname, "/scm", s.cache.Snapshot()),
		Detail: detail,
	}))
}

// @Summary Service desk page
// @Produce html
// @Param filter query string false "Filter expression, e.g. priority = 'Critical'"
// @Success 200 {string} string "HTML page"
// @Router /servicedesk [get]
func (s *Server) handleServiceDesk(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("filter")
	data := s.sampleData()
	incidents, ferr := selectRecords(data.Incidents, expr)
	renderHTML(w, r, templates.ServiceDesk(templates.ServiceDeskData{
		Page:        s.page("Service Desk", "/servicedesk", s.cache.Snapshot()),
		Summary:     summary.ComputeServiceDesk(data.Incidents),
		Incidents:   incidents,
		Filter:      expr,
		FilterError: errString(ferr),
	}))
}

// @Summary Asset management page
// @Produce html
// @Param filter query string false "Filter expression, e.g. type = 'Laptop'"
// @Success 200 {string} string "HTML page"
// @Router /assets [get]
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("filter")
	data := s.sampleData()
	assets, ferr := selectRecords(data.Assets, expr)
	renderHTML(w, r, templates.Assets(templates.AssetsData{
		Page:        s.page("Asset Management", "/assets", s.cache.Snapshot()),
		Summary:     summary.ComputeAssets(data.Assets),
		Assets:      assets,
		Filter:      expr,
		FilterError: errString(ferr),
	}))
}

// @Summary Server monitor page
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /monitor [get]
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	data := s.sampleData()
	renderHTML(w, r, templates.Monitor(templates.MonitorData{
		Page:    s.page("Server Monitor", "/monitor", s.cache.Snapshot()),
		Summary: summary.ComputeMonitor(data.Servers),
		Servers: data.Servers,
	}))
}

// @Summary Training centre page
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /training [get]
func (s *Server) handleTraining(w http.ResponseWriter, r *http.Request) {
	data := s.sampleData()
	renderHTML(w, r, templates.Training(templates.TrainingData{
		Page:    s.page("Training Centre", "/training", s.cache.Snapshot()),
		Summary: summary.ComputeTraining(data.Courses),
		Courses: data.Courses,
	}))
}

// @Summary SCADA rail HMI page
// @Produce html
// @Success 200 {string} string "HTML page"
// @Router /scada [get]
func (s *Server) handleSCADA(w http.ResponseWriter, r *http.Request) {
	data := templates.SCADAData{
		Page:          s.page("SCADA Rail Control", "/scada", s.cache.Snapshot()),
		Enabled:       s.rail != nil,
		TokenRequired: len(s.secret) > 0,
	}
	if s.rail != nil {
		data.State = s.rail.State()
	}
	renderHTML(w, r, templates.SCADA(data))
}

// @Summary Document page
// @Description Print-styled brochure, architecture review or training guide
// @Produce html
// @Param slug path string true "Document slug"
// @Success 200 {string} string "HTML page"
// @Failure 404 {string} string "Document not found"
// @Router /docs/{slug} [get]
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		s.renderErrorPage(w, r, docs.ErrNotFound)
		return
	}
	doc, err := s.docs.Render(r.PathValue("slug"))
	if err != nil {
		s.renderErrorPage(w, r, err)
		return
	}
	renderHTML(w, r, templates.Document(templates.DocumentData{
		Page: s.page(doc.Title, "", s.cache.Snapshot()),
		Doc:  doc,
	}))
}

// selectRecords applies a filter expression. A bad expression yields every
// record together with the parse error.
func selectRecords[T filter.Record](records []T, expr string) ([]T, error) {
	q, err := filter.Parse(expr)
	if err != nil {
		return records, err
	}
	return filter.Select(records, q), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func derefAll[T any](in []*T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, *v)
	}
	return out
}

// alertsOrEmpty keeps JSON arrays non-null.
func alertsOrEmpty(in []model.AlertRecord) []model.AlertRecord {
	if in == nil {
		return []model.AlertRecord{}
	}
	return in
}
