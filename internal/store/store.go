// Package store provides SQL persistence for the IOC on SQLite or MySQL.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrUnknownTable is returned by CountRows for tables the IOC does not own.
var ErrUnknownTable = errors.New("unknown table")

// domainTables are the 18 tables created by the vman, wpm and scm migrations,
// in creation order.
var domainTables = []string{
	"vman_hypervisors",
	"vman_virtual_machines",
	"vman_cloud_instances",
	"vman_recommendations",
	"vman_snapshots",
	"vman_datastores",
	"wpm_websites",
	"wpm_checks",
	"wpm_transactions",
	"wpm_transaction_steps",
	"wpm_alerts",
	"scm_servers",
	"scm_config_changes",
	"scm_file_integrity",
	"scm_certificates",
	"scm_firewall_rules",
	"scm_scheduled_tasks",
	"scm_installed_software",
}

var serviceTables = []string{"ioc_settings", "ioc_alert_log", "ioc_audit_log"}

// DomainTables returns the names of the 18 domain tables.
func DomainTables() []string {
	out := make([]string, len(domainTables))
	copy(out, domainTables)
	return out
}

// Store wraps a SQL database for IOC data persistence.
type Store struct {
	db       *sql.DB
	driver   string
	migrator *Migrator
}

// Open connects to the database, verifies the connection and applies any
// pending migrations.
func Open(driver, dsn string) (*Store, error) {
	s, err := Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	m, err := s.Migrator()
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := m.Up(); err != nil {
		s.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Connect opens the database without touching the schema.
func Connect(driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil && sqliteInMemory(dsn) {
			// Every pooled connection would otherwise see its own empty database.
			db.SetMaxOpenConns(1)
			db.SetConnMaxLifetime(0)
		}
	case DriverMySQL:
		var normalized string
		normalized, err = mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open("mysql", normalized)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

// NewWithDB wraps an existing connection. Used with sqlmock in tests.
func NewWithDB(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DB exposes the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the SQL dialect in use.
func (s *Store) Driver() string { return s.driver }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// sqlitePragmas are applied to every connection unless the DSN already sets
// the same pragma.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqliteDSN turns a path or URI into a modernc DSN carrying the pragmas the
// store relies on. In-memory databases skip WAL, which they cannot use.
func sqliteDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	path, query, _ := strings.Cut(dsn, "?")

	set := map[string]bool{}
	for _, kv := range strings.Split(query, "&") {
		if v, ok := strings.CutPrefix(kv, "_pragma="); ok {
			name, _, _ := strings.Cut(v, "(")
			set[strings.ToLower(name)] = true
		}
	}

	params := []string{}
	if query != "" {
		params = append(params, query)
	}
	memory := sqliteInMemory(dsn)
	for _, p := range sqlitePragmas {
		name, _, _ := strings.Cut(p, "(")
		if set[name] || (memory && name == "journal_mode") {
			continue
		}
		params = append(params, "_pragma="+p)
	}
	if len(params) == 0 {
		return path
	}
	return path + "?" + strings.Join(params, "&")
}

// sqliteInMemory reports whether dsn names a private in-memory database,
// which exists only as long as its connection does.
func sqliteInMemory(dsn string) bool {
	path, query, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == ":memory:" {
		return true
	}
	for _, kv := range strings.Split(query, "&") {
		if kv == "mode=memory" {
			return true
		}
	}
	return false
}

// mysqlDSN forces the options migrations and unix timestamps rely on.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing mysql dsn: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

func knownTable(name string) bool {
	for _, t := range domainTables {
		if t == name {
			return true
		}
	}
	for _, t := range serviceTables {
		if t == name {
			return true
		}
	}
	return false
}

// CountRows returns the number of rows in one of the IOC's tables.
func (s *Store) CountRows(table string) (int, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// RowCounts returns the row count of every domain table.
func (s *Store) RowCounts() (map[string]int, error) {
	counts := make(map[string]int, len(domainTables))
	for _, t := range domainTables {
		n, err := s.CountRows(t)
		if err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, nil
}

// ExistingDomainTables lists which domain tables currently exist, according
// to the database catalog.
func (s *Store) ExistingDomainTables() ([]string, error) {
	var query string
	switch s.driver {
	case DriverMySQL:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE()
			AND (table_name LIKE 'vman\_%' OR table_name LIKE 'wpm\_%' OR table_name LIKE 'scm\_%')
			ORDER BY table_name`
	default:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table'
			AND (name LIKE 'vman\_%' ESCAPE '\' OR name LIKE 'wpm\_%' ESCAPE '\' OR name LIKE 'scm\_%' ESCAPE '\')
			ORDER BY name`
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ptrInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
