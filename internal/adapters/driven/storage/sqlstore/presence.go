package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// LogPresence appends one presence row for guid. Rows are never deduplicated.
func (s *Store) LogPresence(ctx context.Context, rec *domain.PresenceRecord, guid, session string) error {
	if rec == nil {
		return errors.New("sqlstore: nil presence record")
	}

	query := s.rebind(fmt.Sprintf(`INSERT INTO %s (
	teams_guid, availability, ooo_enabled, device, scrape_date_unix,
	scrape_date, hh_period, qh_period, session
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tables.presence))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			guid,
			rec.Availability,
			rec.OOOEnabled(),
			rec.DeviceType,
			rec.UnixTime(),
			rec.CurrentDate(),
			rec.Bucket.HalfHour,
			rec.Bucket.QuarterHour,
			domain.NormalizeSession(session),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("log presence %s: %w", guid, err)
	}

	logger.Debug("sqlstore: presence logged for %s", guid)
	return nil
}

// LogOOO stores msg for guid unless the same content hash is already stored.
// Returns whether a new row was written.
func (s *Store) LogOOO(ctx context.Context, guid string, msg domain.OOOMessage) (bool, error) {
	query := s.rebind(fmt.Sprintf(`INSERT INTO %s (
	md5sum, teams_guid, scrape_date, scrape_time, scrape_date_unix, length, truncated, text
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (md5sum, teams_guid) DO NOTHING`, s.tables.ooo))

	now := s.now()
	truncated := 0
	if msg.Truncated {
		truncated = 1
	}

	var inserted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			msg.ContentHash,
			guid,
			now.Format(time.DateOnly),
			now.Format(time.TimeOnly),
			now.Unix(),
			msg.Length,
			truncated,
			msg.Sanitized,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		inserted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("log ooo %s: %w", guid, err)
	}

	if inserted {
		logger.Debug("sqlstore: ooo message %s logged for %s", msg.ContentHash, guid)
	} else {
		logger.Debug("sqlstore: ooo message %s already stored for %s", msg.ContentHash, guid)
	}
	return inserted, nil
}
