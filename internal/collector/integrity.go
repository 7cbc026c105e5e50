package collector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ioc-platform/ioc/internal/cache"
	"github.com/ioc-platform/ioc/internal/model"
	"github.com/ioc-platform/ioc/internal/store"
	"golang.org/x/crypto/ssh"
)

// SSHConfig holds SSH connection settings for a monitored server.
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string
}

// IntegrityConfig describes one server whose files are watched. Name must
// match the server's hostname in scm_servers.
type IntegrityConfig struct {
	Name     string
	SSH      SSHConfig
	Paths    []string
	Interval time.Duration
}

// commandRunner executes a command on the remote host and returns stdout.
type commandRunner func(ctx context.Context, cmd string) ([]byte, error)

// IntegrityCollector hashes watched files over SSH and records drift.
type IntegrityCollector struct {
	config IntegrityConfig
	cache  *cache.Cache
	store  *store.Store
	signer ssh.Signer // cached at startup
	run    commandRunner
	now    func() time.Time
}

// NewIntegrityCollector creates a file integrity collector for one server.
// The SSH key is parsed once at startup rather than on every poll.
func NewIntegrityCollector(cfg IntegrityConfig, c *cache.Cache, s *store.Store) (*IntegrityCollector, error) {
	keyBytes, err := os.ReadFile(cfg.SSH.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading SSH key %s: %w", cfg.SSH.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing SSH key %s: %w", cfg.SSH.KeyPath, err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SSH.Port == 0 {
		cfg.SSH.Port = 22
	}

	ic := &IntegrityCollector{
		config: cfg,
		cache:  c,
		store:  s,
		signer: signer,
		now:    time.Now,
	}
	ic.run = ic.runSSH
	return ic, nil
}

func (ic *IntegrityCollector) Name() string            { return "scm:" + ic.config.Name }
func (ic *IntegrityCollector) Interval() time.Duration { return ic.config.Interval }

// Collect hashes the watched files and compares them with the stored state.
// Unreachable servers are logged and skipped.
func (ic *IntegrityCollector) Collect(ctx context.Context) error {
	server, err := ic.store.GetServerByHostname(ic.config.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("integrity scan skipped, server not registered", "server", ic.config.Name)
			return nil
		}
		return fmt.Errorf("looking up server %s: %w", ic.config.Name, err)
	}

	out, err := ic.run(ctx, hashCommand(ic.config.Paths))
	if err != nil {
		slog.Debug("integrity scan failed (graceful fallback)", "server", ic.config.Name, "error", err)
		return nil // graceful degradation, not an error
	}
	hashes := parseSHA256Sum(out)

	existing, err := ic.store.ListFileIntegrity(server.ID)
	if err != nil {
		return fmt.Errorf("loading file integrity for %s: %w", ic.config.Name, err)
	}
	prev := make(map[string]*model.FileIntegrity, len(existing))
	for i := range existing {
		prev[existing[i].Path] = &existing[i]
	}

	now := ic.now().Unix()
	drifted := 0
	for _, path := range ic.config.Paths {
		hash, found := hashes[path]
		old := prev[path]
		status, drift := compareHash(old, hash, found)

		if err := ic.store.UpsertFileIntegrity(model.FileIntegrity{
			ServerID:     server.ID,
			Path:         path,
			SHA256:       hash,
			LastVerified: now,
			Status:       status,
		}); err != nil {
			return err
		}

		if drift {
			drifted++
			oldHash := ""
			if old != nil {
				oldHash = old.SHA256
			}
			if err := ic.store.RecordDrift(model.ConfigChange{
				ServerID:  server.ID,
				ChangedAt: now,
				Category:  "file",
				Item:      path,
				OldValue:  shortHash(oldHash),
				NewValue:  shortHash(hash),
				ChangedBy: "ioc-scm",
			}); err != nil {
				return err
			}
			slog.Info("file drift detected", "server", ic.config.Name, "path", path, "status", status)
		}
	}

	if err := ic.store.MarkServerScanned(server.ID, now); err != nil {
		return err
	}
	if updated, err := ic.store.GetServer(server.ID); err == nil {
		ic.cache.UpdateServer(*updated)
	}
	ic.cache.SetLastPoll(ic.Name(), ic.now())

	slog.Debug("integrity scan complete", "server", ic.config.Name, "files", len(ic.config.Paths), "drifted", drifted)
	return nil
}

// compareHash decides a file's new status and whether the change counts as
// drift. A file that was never seen and is absent is missing without drift.
func compareHash(prev *model.FileIntegrity, hash string, found bool) (string, bool) {
	switch {
	case !found && prev == nil:
		return model.IntegrityMissing, false
	case !found:
		return model.IntegrityMissing, prev.Status != model.IntegrityMissing
	case prev == nil:
		return model.IntegrityNew, false
	case prev.SHA256 == hash:
		return model.IntegrityUnchanged, false
	default:
		return model.IntegrityModified, true
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// hashCommand builds a sha256sum invocation over the quoted paths. Missing
// files are reported on stderr, which is discarded.
func hashCommand(paths []string) string {
	var b strings.Builder
	b.WriteString("sha256sum --")
	for _, p := range paths {
		b.WriteByte(' ')
		b.WriteString(shellQuote(p))
	}
	b.WriteString(" 2>/dev/null")
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// parseSHA256Sum parses `sha256sum` output into path -> hex digest.
func parseSHA256Sum(data []byte) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 66 {
			continue
		}
		hash := strings.ToLower(line[:64])
		if !isHex(hash) || line[64] != ' ' {
			continue
		}
		// Text mode is "hash  path", binary mode is "hash *path".
		path := line[66:]
		if line[65] != ' ' && line[65] != '*' {
			continue
		}
		out[path] = hash
	}
	return out
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func (ic *IntegrityCollector) runSSH(ctx context.Context, cmd string) ([]byte, error) {
	config := &ssh.ClientConfig{
		User:            ic.config.SSH.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(ic.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // monitored hosts on the management network
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(ic.config.SSH.Host, strconv.Itoa(ic.config.SSH.Port))
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("creating SSH session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	// sha256sum exits 1 when any file is missing; the hashes it did print
	// are still valid.
	if err := session.Run(cmd); err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitStatus() != 1 {
			return nil, fmt.Errorf("running sha256sum: %w", err)
		}
	}
	return stdout.Bytes(), nil
}
