package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ioc-platform/ioc/internal/docs"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/rail"
	"github.com/ioc-platform/ioc/internal/summary"
)

const (
	defaultChecks = 50
	maxChecks     = 500
	defaultAlerts = 50
	maxAlerts     = 500
	maxActionBody = 64 << 10
)

// queryLimit reads a positive ?limit= capped at upper.
func queryLimit(r *http.Request, def, upper int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw)
	}
	return min(n, upper), nil
}

// @Summary Dashboard summary
// @Description Headline numbers of every dashboard
// @Produce json
// @Success 200 {object} summary.Overview
// @Router /api/summary [get]
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, summary.Compute(s.sampleData(), s.cache.Snapshot(), s.now()))
}

// @Summary Hypervisors
// @Produce json
// @Success 200 {array} model.Hypervisor
// @Router /api/vman/hypervisors [get]
func (s *Server) handleHypervisors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.cache.Snapshot().HypervisorList())
}

// @Summary Virtual machines
// @Produce json
// @Success 200 {array} model.VirtualMachine
// @Router /api/vman/vms [get]
func (s *Server) handleVMs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.cache.Snapshot().VMList())
}

// @Summary Cloud instances
// @Produce json
// @Success 200 {array} model.CloudInstance
// @Router /api/vman/cloud [get]
func (s *Server) handleCloud(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.cache.Snapshot().CloudList())
}

// @Summary Rightsizing recommendations
// @Produce json
// @Success 200 {array} model.Recommendation
// @Router /api/vman/recommendations [get]
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.cache.Snapshot().RecommendationList())
}

// @Summary Monitored websites
// @Produce json
// @Success 200 {array} model.Website
// @Router /api/wpm/websites [get]
func (s *Server) handleWebsites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.cache.Snapshot().WebsiteList())
}

// @Summary Website check history
// @Description Most recent probe results for one website, newest first
// @Produce json
// @Param id path int true "Website ID"
// @Param limit query int false "Maximum rows (1-500)" default(50)
// @Success 200 {array} model.WebsiteCheck
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/wpm/websites/{id}/checks [get]
func (s *Server) handleWebsiteChecks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r, defaultChecks, maxChecks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetWebsite(id); err != nil {
		writeError(w, r, err)
		return
	}
	checks, err := s.store.ListWebsiteChecks(id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if checks == nil {
		checks = []model.WebsiteCheck{}
	}
	writeJSON(w, r, checks)
}

// @Summary SCM servers
// @Produce json
// @Success 200 {array} model.Server
// @Router /api/scm/servers [get]
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.cache.Snapshot().ServerList())
}

// @Summary SCM server detail
// @Description Server with its changes, file integrity, certificates, firewall rules, tasks and software
// @Produce json
// @Param id path int true "Server ID"
// @Success 200 {object} model.ServerDetail
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/scm/servers/{id} [get]
func (s *Server) handleServerDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := s.store.GetServerDetail(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, detail)
}

// @Summary Service desk incidents
// @Produce json
// @Param filter query string false "Filter expression, e.g. priority = 'Critical' AND status != 'Closed'"
// @Success 200 {array} sample.Incident
// @Failure 400 {object} errorResponse
// @Router /api/servicedesk/incidents [get]
func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := selectRecords(s.sampleData().Incidents, r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, incidents)
}

// @Summary Asset register
// @Produce json
// @Param filter query string false "Filter expression, e.g. warranty_days_left <= 90"
// @Success 200 {array} sample.Asset
// @Failure 400 {object} errorResponse
// @Router /api/assets [get]
func (s *Server) handleAssetList(w http.ResponseWriter, r *http.Request) {
	assets, err := selectRecords(s.sampleData().Assets, r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, assets)
}

// @Summary Chart data
// @Description Labels and datasets for a Chart.js chart
// @Produce json
// @Param name path string true "Chart name"
// @Success 200 {object} summary.ChartData
// @Failure 404 {object} errorResponse
// @Router /api/charts/{name} [get]
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	chart, err := summary.Chart(r.PathValue("name"), s.sampleData(), s.cache.Snapshot())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, chart)
}

// @Summary Alert log
// @Description Alerts fired by the alerter, newest first
// @Produce json
// @Param limit query int false "Maximum rows (1-500)" default(50)
// @Success 200 {array} model.AlertRecord
// @Failure 400 {object} errorResponse
// @Router /api/alerts [get]
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultAlerts, maxAlerts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	alerts, err := s.store.ListAlerts(limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, alertsOrEmpty(alerts))
}

// @Summary Documents
// @Description Brochures, reviews and guides available under /docs/{slug}
// @Produce json
// @Success 200 {array} docs.Entry
// @Router /api/docs [get]
func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	entries := []docs.Entry{}
	if s.docs != nil {
		entries = s.docs.List()
	}
	writeJSON(w, r, entries)
}

// ----------------------------------------------------------------------------
// Rail control
// ----------------------------------------------------------------------------

// railResponse is the envelope the SCADA HMI expects.
type railResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    *rail.State `json:"data,omitempty"`
}

var errRailDisabled = errors.New("rail simulator is disabled")

// @Summary Rail layout state
// @Description Track circuits, signals, points, trains, platforms, level crossings and emergency systems
// @Produce json
// @Success 200 {object} railResponse
// @Failure 503 {object} railResponse
// @Router /api/rail/state [get]
func (s *Server) handleRailState(w http.ResponseWriter, r *http.Request) {
	if s.rail == nil {
		writeJSONStatus(w, r, http.StatusServiceUnavailable, railResponse{Message: errRailDisabled.Error()})
		return
	}
	state := s.rail.State()
	writeJSON(w, r, railResponse{Success: true, Data: &state})
}

// @Summary Rail operator action
// @Description Applies change_signal, move_point, control_doors, control_crossing, emergency_stop or reset_emergency under interlocking
// @Accept json
// @Produce json
// @Param Authorization header string false "Bearer operator token, required when a JWT secret is configured"
// @Param action body rail.Action true "Operator action"
// @Success 200 {object} railResponse
// @Failure 400 {object} railResponse
// @Failure 401 {object} railResponse
// @Failure 409 {object} railResponse
// @Failure 503 {object} railResponse
// @Router /api/rail/actions [post]
func (s *Server) handleRailAction(w http.ResponseWriter, r *http.Request) {
	if s.rail == nil {
		writeJSONStatus(w, r, http.StatusServiceUnavailable, railResponse{Message: errRailDisabled.Error()})
		return
	}

	// The body is read before the token is judged so refused attempts are
	// audited with what they asked for.
	var action rail.Action
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody))
	dec.DisallowUnknownFields()
	decodeErr := dec.Decode(&action)

	actor, err := s.operator(r)
	if err != nil {
		s.rail.Refuse(unauthenticatedActor, action, err)
		s.writeRailError(w, r, err)
		return
	}
	if decodeErr != nil {
		err := fmt.Errorf("%w: decoding action: %v", errBadRequest, decodeErr)
		s.rail.Refuse(actor, action, err)
		s.writeRailError(w, r, err)
		return
	}

	msg, err := s.rail.Apply(actor, action)
	if err != nil {
		s.writeRailError(w, r, err)
		return
	}
	state := s.rail.State()
	writeJSON(w, r, railResponse{Success: true, Message: msg, Data: &state})
}

// unauthenticatedActor is the audit actor of requests refused for a missing
// or invalid operator token.
const unauthenticatedActor = "unauthenticated"

// operator returns the audit actor for a rail action. Without a configured
// secret every caller is anonymous.
func (s *Server) operator(r *http.Request) (string, error) {
	if len(s.secret) == 0 {
		return "", nil
	}
	token := extractBearerToken(r)
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", rail.ErrUnauthorized)
	}
	return rail.VerifyToken(s.secret, token)
}

func (s *Server) writeRailError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="ioc"`)
	}
	state := s.rail.State()
	writeJSONStatus(w, r, status, railResponse{
		Message: publicMessage(r, status, err),
		Data:    &state,
	})
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ----------------------------------------------------------------------------
// Health
// ----------------------------------------------------------------------------

type healthResponse struct {
	Status     string            `json:"status"`
	Timestamp  int64             `json:"timestamp"`
	Database   string            `json:"database"`
	Collectors map[string]string `json:"collectors"`
}

// @Summary Health check
// @Description Returns service health status, database reachability and collector poll times
// @Produce json
// @Success 200 {object} healthResponse
// @Failure 503 {object} healthResponse
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	now := s.now()

	resp := healthResponse{
		Status:     "ok",
		Timestamp:  now.Unix(),
		Database:   "ok",
		Collectors: make(map[string]string, len(snap.LastPoll)),
	}
	if len(snap.LastPoll) == 0 {
		resp.Status = "no_data"
	}
	for k, v := range snap.LastPoll {
		resp.Collectors[k] = fmt.Sprintf("%ds ago", int(now.Sub(v).Round(time.Second).Seconds()))
	}

	status := http.StatusOK
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		slog.Warn("health check database ping", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, r, status, resp)
}
