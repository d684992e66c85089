// Package sqlstore persists presence observations, out-of-office notes and
// directory records to SQLite or PostgreSQL through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.PresenceStore = (*Store)(nil)

// Driver selects the database backend.
type Driver string

const (
	// DriverSQLite uses the pure Go SQLite driver.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres uses pgx through database/sql.
	DriverPostgres Driver = "postgres"
)

// Default table names.
const (
	DefaultPresenceTable = "presence"
	DefaultOOOTable      = "ooo"
	DefaultUserInfoTable = "user_info"
)

// Config configures the store.
type Config struct {
	Driver        Driver
	DSN           string
	PresenceTable string
	OOOTable      string
	UserInfoTable string
	// Migrate creates missing tables on Open.
	Migrate bool
}

// Store is a relational presence sink. Safe for concurrent use; every
// operation runs on its own connection and transaction.
type Store struct {
	db     *sql.DB
	driver Driver
	tables tables
	now    func() time.Time
}

type tables struct {
	presence string
	ooo      string
	userInfo string
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name is safe to splice into SQL as a table name.
func ValidIdentifier(name string) bool {
	return identifier.MatchString(name)
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.PresenceTable == "" {
		c.PresenceTable = DefaultPresenceTable
	}
	if c.OOOTable == "" {
		c.OOOTable = DefaultOOOTable
	}
	if c.UserInfoTable == "" {
		c.UserInfoTable = DefaultUserInfoTable
	}
	return c
}

func (c Config) validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("dsn is required")
	}
	for _, name := range []string{c.PresenceTable, c.OOOTable, c.UserInfoTable} {
		if !ValidIdentifier(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

func (d Driver) sqlName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Open connects to the database, pings it and optionally creates the tables.
// All failures wrap domain.ErrStoreUnavailable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	db, err := sql.Open(cfg.Driver.sqlName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", domain.ErrStoreUnavailable, err)
	}
	if cfg.Driver == DriverSQLite {
		// single writer avoids SQLITE_BUSY and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", domain.ErrStoreUnavailable, err)
	}

	s := &Store{
		db:     db,
		driver: cfg.Driver,
		tables: tables{
			presence: cfg.PresenceTable,
			ooo:      cfg.OOOTable,
			userInfo: cfg.UserInfoTable,
		},
		now: time.Now,
	}

	if cfg.Migrate {
		if err := s.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
	}

	logger.Debug("sqlstore: connected (%s)", cfg.Driver)
	return s, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	return rebind(s.driver, query)
}

func rebind(d Driver, query string) string {
	if d != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withTx runs fn in a transaction on a dedicated connection. The connection
// and transaction are released on every path.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", domain.ErrStoreUnavailable, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrStoreUnavailable, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classify marks connection-level database errors as store unavailability.
func classify(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 connection exception, 57P0x operator intervention
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0") {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}
