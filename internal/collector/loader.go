package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/store"
)

// Loader refreshes the cache from the database on an interval.
type Loader struct {
	store    *store.Store
	cache    *cache.Cache
	interval time.Duration
}

// NewLoader creates a loader.
func NewLoader(s *store.Store, c *cache.Cache, interval time.Duration) *Loader {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Loader{store: s, cache: c, interval: interval}
}

func (l *Loader) Name() string            { return "loader" }
func (l *Loader) Interval() time.Duration { return l.interval }

// Collect reloads all three domains. A failing domain keeps its previous
// cache contents; the first error is returned after every domain was tried.
func (l *Loader) Collect(ctx context.Context) error {
	var firstErr error
	for _, load := range []func() error{l.loadVMAN, l.loadWPM, l.loadSCM} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := load(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	l.cache.SetLastPoll(l.Name(), time.Now())
	return nil
}

func (l *Loader) loadVMAN() error {
	var (
		d   cache.VMAN
		err error
	)
	if d.Hypervisors, err = l.store.ListHypervisors(); err != nil {
		return fmt.Errorf("loading vman: %w", err)
	}
	if d.VMs, err = l.store.ListVMs(); err != nil {
		return fmt.Errorf("loading vman: %w", err)
	}
	if d.CloudInstances, err = l.store.ListCloudInstances(); err != nil {
		return fmt.Errorf("loading vman: %w", err)
	}
	if d.Recommendations, err = l.store.ListRecommendations(); err != nil {
		return fmt.Errorf("loading vman: %w", err)
	}
	if d.Snapshots, err = l.store.ListSnapshots(); err != nil {
		return fmt.Errorf("loading vman: %w", err)
	}
	if d.Datastores, err = l.store.ListDatastores(); err != nil {
		return fmt.Errorf("loading vman: %w", err)
	}
	l.cache.UpdateVMAN(d)
	return nil
}

func (l *Loader) loadWPM() error {
	var (
		d   cache.WPM
		err error
	)
	if d.Websites, err = l.store.ListWebsites(); err != nil {
		return fmt.Errorf("loading wpm: %w", err)
	}
	if d.Transactions, err = l.store.ListTransactions(); err != nil {
		return fmt.Errorf("loading wpm: %w", err)
	}
	if d.Alerts, err = l.store.ListWebsiteAlerts(false); err != nil {
		return fmt.Errorf("loading wpm: %w", err)
	}
	l.cache.UpdateWPM(d)
	return nil
}

func (l *Loader) loadSCM() error {
	var (
		d   cache.SCM
		err error
	)
	if d.Servers, err = l.store.ListServers(); err != nil {
		return fmt.Errorf("loading scm: %w", err)
	}
	if d.Certificates, err = l.store.ListCertificates(); err != nil {
		return fmt.Errorf("loading scm: %w", err)
	}
	l.cache.UpdateSCM(d)
	return nil
}
