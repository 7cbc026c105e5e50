package collector

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/store"
)

// ProbeConfig holds website probe settings.
type ProbeConfig struct {
	Interval      time.Duration
	Timeout       time.Duration
	SlowThreshold time.Duration
}

// ProbeResult is the outcome of a single website check.
type ProbeResult struct {
	Check     model.WebsiteCheck
	TLSExpiry *time.Time
	TLSIssuer string
}

// Probe checks every enabled website that is due, through the worker pool.
type Probe struct {
	config ProbeConfig
	client *http.Client
	pool   *WorkerPool
	cache  *cache.Cache
	store  *store.Store
	now    func() time.Time
}

// NewProbe creates a website probe. Certificates are not verified so that
// expired or self-signed certificates can still be read and reported.
func NewProbe(cfg ProbeConfig, pool *WorkerPool, c *cache.Cache, s *store.Store) *Probe {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // expiry is checked explicitly
	}
	return &Probe{
		config: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		pool:  pool,
		cache: c,
		store: s,
		now:   time.Now,
	}
}

func (p *Probe) Name() string            { return "wpm-probe" }
func (p *Probe) Interval() time.Duration { return p.config.Interval }

// Collect checks all websites whose check interval has elapsed.
func (p *Probe) Collect(ctx context.Context) error {
	sites, err := p.store.ListWebsites()
	if err != nil {
		return fmt.Errorf("listing websites: %w", err)
	}

	now := p.now()
	var dueSites []model.Website
	for _, site := range sites {
		if due(site, now) {
			dueSites = append(dueSites, site)
		}
	}
	if err := p.pool.Each(ctx, len(dueSites), func(i int) {
		p.record(p.Check(ctx, dueSites[i]))
	}); err != nil {
		return fmt.Errorf("probing websites: %w", err)
	}

	p.cache.SetLastPoll(p.Name(), p.now())
	return nil
}

func due(site model.Website, now time.Time) bool {
	if !site.Enabled {
		return false
	}
	if site.LastChecked == 0 {
		return true
	}
	return now.Unix()-site.LastChecked >= int64(site.CheckIntervalSecs)
}

func (p *Probe) record(res ProbeResult) {
	if err := p.store.RecordWebsiteCheck(res.Check); err != nil {
		slog.Error("recording website check", "website_id", res.Check.WebsiteID, "error", err)
		return
	}
	p.cache.UpdateWebsiteCheck(res.Check)

	if res.TLSExpiry != nil {
		expiry := res.TLSExpiry.Unix()
		if err := p.store.UpdateWebsiteTLS(res.Check.WebsiteID, expiry, res.TLSIssuer); err != nil {
			slog.Error("recording certificate expiry", "website_id", res.Check.WebsiteID, "error", err)
			return
		}
		p.cache.UpdateWebsiteTLS(res.Check.WebsiteID, expiry, res.TLSIssuer)
	}
}

// Check performs one HTTP GET against the site. A network error is retried
// once before the site is reported down.
func (p *Probe) Check(ctx context.Context, site model.Website) ProbeResult {
	res, err := p.get(ctx, site)
	if isTransient(err) && ctx.Err() == nil {
		slog.Debug("retrying website probe", "website", site.Name, "error", err)
		res, err = p.get(ctx, site)
	}
	if err != nil {
		res.Check.Status = model.SiteDown
		res.Check.Error = err.Error()
	}
	slog.Debug("website probed", "website", site.Name, "status", res.Check.Status, "ms", res.Check.ResponseMS)
	return res
}

func (p *Probe) get(ctx context.Context, site model.Website) (ProbeResult, error) {
	start := p.now()
	res := ProbeResult{Check: model.WebsiteCheck{WebsiteID: site.ID, CheckedAt: start.Unix()}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.URL, nil)
	if err != nil {
		return res, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "ioc-wpm-probe/1.0")

	began := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return res, transient(fmt.Errorf("requesting %s: %w", site.URL, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	elapsed := time.Since(began)

	res.Check.ResponseMS = elapsed.Milliseconds()
	res.Check.HTTPStatus = resp.StatusCode

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		leaf := resp.TLS.PeerCertificates[0]
		expiry := leaf.NotAfter
		res.TLSExpiry = &expiry
		res.TLSIssuer = leaf.Issuer.CommonName
		if res.TLSIssuer == "" && len(leaf.Issuer.Organization) > 0 {
			res.TLSIssuer = leaf.Issuer.Organization[0]
		}
	}

	res.Check.Status = Classify(resp.StatusCode, elapsed, p.config.SlowThreshold)
	if resp.StatusCode >= 400 {
		res.Check.Error = http.StatusText(resp.StatusCode)
	}
	if res.TLSExpiry != nil && res.TLSExpiry.Before(start) {
		res.Check.Status = model.SiteDown
		res.Check.Error = "certificate has expired"
	}
	return res, nil
}

// Classify maps an HTTP response to a website status: 4xx and 5xx are down,
// anything slower than the threshold is degraded. A zero threshold disables
// the slow check.
func Classify(statusCode int, elapsed, slow time.Duration) string {
	switch {
	case statusCode >= 400:
		return model.SiteDown
	case slow > 0 && elapsed >= slow:
		return model.SiteDegraded
	default:
		return model.SiteUp
	}
}
