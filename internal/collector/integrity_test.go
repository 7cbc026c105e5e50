package collector

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	hashA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	hashB = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
)

// testSSHKeyFile creates a temporary Ed25519 SSH key file for tests and returns
// its path. The key is cleaned up automatically when the test finishes.
func testSSHKeyFile(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privPEM, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(privPEM), 0o600))
	return keyPath
}

func newCollectorStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addServer(t *testing.T, s *store.Store, hostname string) int64 {
	t.Helper()
	res, err := s.DB().Exec(`
		INSERT INTO scm_servers (hostname, ip_address, os_name, platform, environment, compliance_status)
		VALUES (?, '10.0.0.1', 'Ubuntu', 'linux', 'production', 'compliant')`, hostname)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// newTestIntegrity builds a collector whose remote command is replaced by fn.
func newTestIntegrity(t *testing.T, s *store.Store, c *cache.Cache, paths []string, fn commandRunner) *IntegrityCollector {
	t.Helper()
	cfg := IntegrityConfig{
		Name:  "web-01",
		SSH:   SSHConfig{Host: "127.0.0.1", User: "root", KeyPath: testSSHKeyFile(t)},
		Paths: paths,
	}
	ic, err := NewIntegrityCollector(cfg, c, s)
	require.NoError(t, err)
	ic.run = fn
	ic.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return ic
}

func sumOutput(lines ...string) commandRunner {
	return func(_ context.Context, _ string) ([]byte, error) {
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	}
}

// ---------------------------------------------------------------------------
// parseSHA256Sum
// ---------------------------------------------------------------------------

func TestParseSHA256Sum_TextAndBinaryMode(t *testing.T) {
	data := []byte(hashA + "  /etc/passwd\n" + hashB + " */etc/ssh/sshd_config\n")
	got := parseSHA256Sum(data)
	assert.Equal(t, map[string]string{
		"/etc/passwd":          hashA,
		"/etc/ssh/sshd_config": hashB,
	}, got)
}

func TestParseSHA256Sum_PathWithSpaces(t *testing.T) {
	got := parseSHA256Sum([]byte(hashA + "  /srv/my app/config.yml\n"))
	assert.Equal(t, hashA, got["/srv/my app/config.yml"])
}

func TestParseSHA256Sum_SkipsGarbage(t *testing.T) {
	data := []byte(strings.Join([]string{
		"",
		"sha256sum: /etc/shadow: Permission denied",
		strings.Repeat("z", 64) + "  /etc/hosts",
		hashA + "x /etc/group",
		"short  /etc/motd",
	}, "\n"))
	assert.Empty(t, parseSHA256Sum(data))
}

func TestParseSHA256Sum_UppercaseNormalized(t *testing.T) {
	got := parseSHA256Sum([]byte(strings.ToUpper(hashA) + "  /etc/hosts\n"))
	assert.Equal(t, hashA, got["/etc/hosts"])
}

// ---------------------------------------------------------------------------
// compareHash
// ---------------------------------------------------------------------------

func TestCompareHash(t *testing.T) {
	tests := []struct {
		name       string
		prev       *model.FileIntegrity
		hash       string
		found      bool
		wantStatus string
		wantDrift  bool
	}{
		{"first sighting", nil, hashA, true, model.IntegrityNew, false},
		{"never existed", nil, "", false, model.IntegrityMissing, false},
		{"unchanged", &model.FileIntegrity{SHA256: hashA, Status: model.IntegrityUnchanged}, hashA, true, model.IntegrityUnchanged, false},
		{"modified", &model.FileIntegrity{SHA256: hashA, Status: model.IntegrityUnchanged}, hashB, true, model.IntegrityModified, true},
		{"deleted", &model.FileIntegrity{SHA256: hashA, Status: model.IntegrityUnchanged}, "", false, model.IntegrityMissing, true},
		{"still missing", &model.FileIntegrity{Status: model.IntegrityMissing}, "", false, model.IntegrityMissing, false},
		{"reappeared", &model.FileIntegrity{Status: model.IntegrityMissing}, hashA, true, model.IntegrityModified, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, drift := compareHash(tt.prev, tt.hash, tt.found)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantDrift, drift)
		})
	}
}

func TestHashCommand_QuotesPaths(t *testing.T) {
	got := hashCommand([]string{"/etc/hosts", "/srv/it's here"})
	assert.Equal(t, `sha256sum -- '/etc/hosts' '/srv/it'\''s here' 2>/dev/null`, got)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc", shortHash(hashA))
	assert.Equal(t, "abc", shortHash("abc"))
	assert.Equal(t, "", shortHash(""))
}

// ---------------------------------------------------------------------------
// NewIntegrityCollector
// ---------------------------------------------------------------------------

func TestNewIntegrityCollector_ValidKey(t *testing.T) {
	cfg := IntegrityConfig{
		Name: "web-01",
		SSH:  SSHConfig{Host: "10.0.1.10", User: "root", KeyPath: testSSHKeyFile(t)},
	}
	ic, err := NewIntegrityCollector(cfg, cache.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, "scm:web-01", ic.Name())
	assert.Equal(t, 5*time.Minute, ic.Interval())
	assert.Equal(t, 22, ic.config.SSH.Port)
	assert.NotNil(t, ic.signer)
	assert.NotNil(t, ic.run)
}

func TestNewIntegrityCollector_BadKeyPath(t *testing.T) {
	cfg := IntegrityConfig{Name: "web-01", SSH: SSHConfig{KeyPath: "/nonexistent/key"}}
	_, err := NewIntegrityCollector(cfg, cache.New(), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reading SSH key")
}

func TestNewIntegrityCollector_InvalidKey(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "bad_key")
	require.NoError(t, os.WriteFile(tmpFile, []byte("not a valid key"), 0o600))

	cfg := IntegrityConfig{Name: "web-01", SSH: SSHConfig{KeyPath: tmpFile}}
	_, err := NewIntegrityCollector(cfg, cache.New(), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parsing SSH key")
}

// ---------------------------------------------------------------------------
// Collect
// ---------------------------------------------------------------------------

func TestIntegrityCollect_FirstScanRecordsNew(t *testing.T) {
	s := newCollectorStore(t)
	id := addServer(t, s, "web-01")
	c := cache.New()
	ic := newTestIntegrity(t, s, c, []string{"/etc/passwd", "/etc/missing"}, sumOutput(hashA+"  /etc/passwd"))

	require.NoError(t, ic.Collect(context.Background()))

	files, err := s.ListFileIntegrity(id)
	require.NoError(t, err)
	byPath := map[string]model.FileIntegrity{}
	for _, f := range files {
		byPath[f.Path] = f
	}
	require.Len(t, byPath, 2)
	assert.Equal(t, model.IntegrityNew, byPath["/etc/passwd"].Status)
	assert.Equal(t, hashA, byPath["/etc/passwd"].SHA256)
	assert.Equal(t, model.IntegrityMissing, byPath["/etc/missing"].Status)

	srv, err := s.GetServer(id)
	require.NoError(t, err)
	assert.Equal(t, 0, srv.DriftCount)
	assert.Equal(t, model.Compliant, srv.ComplianceStatus)
	assert.Equal(t, int64(1_700_000_000), srv.LastScan)

	snap := c.Snapshot()
	require.Contains(t, snap.Servers, id)
	assert.Equal(t, int64(1_700_000_000), snap.Servers[id].LastScan)
	assert.Contains(t, snap.LastPoll, "scm:web-01")
}

func TestIntegrityCollect_ModifiedFileRecordsDrift(t *testing.T) {
	s := newCollectorStore(t)
	id := addServer(t, s, "web-01")
	c := cache.New()
	paths := []string{"/etc/passwd", "/etc/hosts"}

	ic := newTestIntegrity(t, s, c, paths, sumOutput(hashA+"  /etc/passwd", hashA+"  /etc/hosts"))
	require.NoError(t, ic.Collect(context.Background()))

	ic.run = sumOutput(hashA+"  /etc/passwd", hashB+"  /etc/hosts")
	require.NoError(t, ic.Collect(context.Background()))

	files, err := s.ListFileIntegrity(id)
	require.NoError(t, err)
	for _, f := range files {
		switch f.Path {
		case "/etc/passwd":
			assert.Equal(t, model.IntegrityUnchanged, f.Status)
		case "/etc/hosts":
			assert.Equal(t, model.IntegrityModified, f.Status)
			assert.Equal(t, hashB, f.SHA256)
		}
	}

	changes, err := s.ListConfigChanges(id, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "file", changes[0].Category)
	assert.Equal(t, "/etc/hosts", changes[0].Item)
	assert.Equal(t, hashA[:12], changes[0].OldValue)
	assert.Equal(t, hashB[:12], changes[0].NewValue)
	assert.Equal(t, "ioc-scm", changes[0].ChangedBy)

	srv, err := s.GetServer(id)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.DriftCount)
	assert.Equal(t, model.NonCompliant, srv.ComplianceStatus)
	assert.Equal(t, model.NonCompliant, c.Snapshot().Servers[id].ComplianceStatus)
}

func TestIntegrityCollect_GracefulFallbackOnRunFailure(t *testing.T) {
	s := newCollectorStore(t)
	id := addServer(t, s, "web-01")
	c := cache.New()
	ic := newTestIntegrity(t, s, c, []string{"/etc/passwd"}, func(context.Context, string) ([]byte, error) {
		return nil, errors.New("connection refused")
	})

	assert.NoError(t, ic.Collect(context.Background()))

	files, err := s.ListFileIntegrity(id)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotContains(t, c.Snapshot().LastPoll, "scm:web-01")
}

func TestIntegrityCollect_UnregisteredServerSkipped(t *testing.T) {
	s := newCollectorStore(t)
	called := false
	ic := newTestIntegrity(t, s, cache.New(), []string{"/etc/passwd"}, func(context.Context, string) ([]byte, error) {
		called = true
		return nil, nil
	})

	assert.NoError(t, ic.Collect(context.Background()))
	assert.False(t, called)
}

func TestIntegrityCollect_GracefulFallbackOnConnFailure(t *testing.T) {
	s := newCollectorStore(t)
	addServer(t, s, "web-01")
	cfg := IntegrityConfig{
		Name:  "web-01",
		SSH:   SSHConfig{Host: "127.0.0.1", Port: 1, User: "root", KeyPath: testSSHKeyFile(t)},
		Paths: []string{"/etc/passwd"},
	}
	ic, err := NewIntegrityCollector(cfg, cache.New(), s)
	require.NoError(t, err)

	// Collect should not return error even when SSH connection fails (graceful degradation)
	assert.NoError(t, ic.Collect(context.Background()))
}

func TestRunSSH_ConnectionFailure(t *testing.T) {
	cfg := IntegrityConfig{
		Name: "web-01",
		// Use an unreachable address to force a connection error
		SSH: SSHConfig{Host: "192.0.2.1", User: "root", KeyPath: testSSHKeyFile(t)},
	}
	ic, err := NewIntegrityCollector(cfg, cache.New(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ic.runSSH(ctx, "true")
	assert.Error(t, err)
}

func FuzzParseSHA256Sum(f *testing.F) {
	f.Add(strings.Repeat("a", 64) + "  /etc/hosts\n")
	f.Add(strings.Repeat("F", 64) + " */usr/bin/sshd\n")
	f.Add("sha256sum: /etc/shadow: Permission denied\n")
	f.Add("")

	f.Fuzz(func(t *testing.T, data string) {
		for path, hash := range parseSHA256Sum([]byte(data)) {
			assert.Len(t, hash, 64, path)
			assert.True(t, isHex(hash), hash)
			assert.Equal(t, strings.ToLower(hash), hash)
		}
	})
}
