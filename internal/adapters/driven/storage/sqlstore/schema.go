package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// schema returns the DDL for the three tables.
func (s *Store) schema() []string {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	teams_guid TEXT NOT NULL,
	availability TEXT,
	ooo_enabled INTEGER NOT NULL DEFAULT 0,
	device TEXT,
	scrape_date_unix BIGINT NOT NULL,
	scrape_date TEXT NOT NULL,
	hh_period INTEGER NOT NULL,
	qh_period INTEGER NOT NULL,
	session TEXT NOT NULL
)`, s.tables.presence, id),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	md5sum TEXT NOT NULL,
	teams_guid TEXT NOT NULL,
	scrape_date TEXT NOT NULL,
	scrape_time TEXT NOT NULL,
	scrape_date_unix BIGINT NOT NULL,
	length INTEGER NOT NULL,
	truncated INTEGER NOT NULL DEFAULT 0,
	text TEXT,
	UNIQUE (md5sum, teams_guid)
)`, s.tables.ooo, id),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s,
	object_id TEXT NOT NULL,
	user_principal_name TEXT NOT NULL,
	email TEXT,
	display_name TEXT,
	tenant_id TEXT,
	co_existence_mode TEXT,
	given_name TEXT,
	surname TEXT,
	account_enabled BOOLEAN,
	tenant_name TEXT,
	country TEXT,
	city TEXT,
	scrape_date TEXT NOT NULL,
	scrape_time TEXT NOT NULL,
	scrape_date_unix BIGINT NOT NULL,
	UNIQUE (object_id, user_principal_name)
)`, s.tables.userInfo, id),
	}
}

// migrate creates missing tables.
func (s *Store) migrate(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range s.schema() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
