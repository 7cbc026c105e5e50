package collector

import (
	"context"
	"testing"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader_DefaultInterval(t *testing.T) {
	l := NewLoader(nil, cache.New(), 0)
	assert.Equal(t, "loader", l.Name())
	assert.Equal(t, 30*time.Second, l.Interval())

	l = NewLoader(nil, cache.New(), time.Minute)
	assert.Equal(t, time.Minute, l.Interval())
}

func TestLoader_Collect_PopulatesCache(t *testing.T) {
	s := newCollectorStore(t)
	srv := addServer(t, s, "db-01")
	_, err := s.DB().Exec(`INSERT INTO wpm_websites (name, url, check_interval_secs, enabled) VALUES ('Corp', 'https://corp.example', 60, 1)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO vman_hypervisors (name, host, platform, status) VALUES ('esx-01', '10.0.0.5', 'vmware', 'online')`)
	require.NoError(t, err)

	c := cache.New()
	l := NewLoader(s, c, time.Minute)
	require.NoError(t, l.Collect(context.Background()))

	snap := c.Snapshot()
	assert.Len(t, snap.Hypervisors, 1)
	assert.Len(t, snap.Websites, 1)
	require.Contains(t, snap.Servers, srv)
	assert.Equal(t, "db-01", snap.Servers[srv].Hostname)
	assert.Contains(t, snap.LastPoll, "loader")
}

func TestLoader_Collect_ReplacesStaleEntries(t *testing.T) {
	s := newCollectorStore(t)
	c := cache.New()
	l := NewLoader(s, c, time.Minute)

	id := addServer(t, s, "old-01")
	require.NoError(t, l.Collect(context.Background()))
	require.Contains(t, c.Snapshot().Servers, id)

	_, err := s.DB().Exec(`DELETE FROM scm_servers WHERE id = ?`, id)
	require.NoError(t, err)
	require.NoError(t, l.Collect(context.Background()))
	assert.NotContains(t, c.Snapshot().Servers, id)
}

func TestLoader_Collect_CancelledContext(t *testing.T) {
	s := newCollectorStore(t)
	c := cache.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLoader(s, c, time.Minute).Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, c.Snapshot().LastPoll, "loader")
}

func TestLoader_Collect_StoreClosed(t *testing.T) {
	s := newCollectorStore(t)
	require.NoError(t, s.Close())

	c := cache.New()
	err := NewLoader(s, c, time.Minute).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading vman")
	assert.NotContains(t, c.Snapshot().LastPoll, "loader")
}
