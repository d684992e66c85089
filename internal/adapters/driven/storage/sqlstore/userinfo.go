package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/logger"
)

// directoryUser is one entry of a corporate search result. Optional fields
// are pointers so absent values are stored as NULL.
type directoryUser struct {
	ObjectID          string  `json:"objectId"`
	UserPrincipalName string  `json:"userPrincipalName"`
	Email             *string `json:"email"`
	DisplayName       *string `json:"displayName"`
	TenantID          *string `json:"tenantId"`
	FeatureSettings   *struct {
		CoExistenceMode *string `json:"coExistenceMode"`
	} `json:"featureSettings"`
	GivenName      *string `json:"givenName"`
	Surname        *string `json:"surname"`
	AccountEnabled *bool   `json:"accountEnabled"`
	TenantName     *string `json:"tenantName"`
	Country        *string `json:"Country"`
	City           *string `json:"City"`
}

func (u directoryUser) coExistenceMode() *string {
	if u.FeatureSettings == nil {
		return nil
	}
	return u.FeatureSettings.CoExistenceMode
}

// parseUserInfo splits payload into its user list and optional presence
// line. The presence line is validated but not stored; an invalid one is
// returned as nil.
func parseUserInfo(payload string) ([]directoryUser, json.RawMessage, error) {
	parts := strings.Split(payload, "\n")

	var users []directoryUser
	if err := json.Unmarshal([]byte(strings.TrimSpace(parts[0])), &users); err != nil {
		return nil, nil, fmt.Errorf("%w: user info: %w", domain.ErrMalformedResponse, err)
	}

	var presence json.RawMessage
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		if err := json.Unmarshal([]byte(strings.TrimSpace(parts[1])), &presence); err != nil {
			logger.Debug("sqlstore: second line is not valid JSON, skipping presence information")
			presence = nil
		}
	}

	return users, presence, nil
}

// LogUserInfo stores the directory users found on the first line of payload.
// Entries without objectId or userPrincipalName are skipped. Returns the
// number of rows newly inserted.
func (s *Store) LogUserInfo(ctx context.Context, payload string) (int, error) {
	users, presence, err := parseUserInfo(payload)
	if err != nil {
		return 0, err
	}
	if presence != nil {
		logger.Debug("sqlstore: user info carries a presence line (%d bytes), not stored", len(presence))
	}

	query := s.rebind(fmt.Sprintf(`INSERT INTO %s (
	object_id, user_principal_name, email, display_name, tenant_id,
	co_existence_mode, given_name, surname, account_enabled, tenant_name,
	country, city, scrape_date, scrape_time, scrape_date_unix
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (object_id, user_principal_name) DO NOTHING`, s.tables.userInfo))

	now := s.now()
	var inserted int
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range users {
			if u.ObjectID == "" || u.UserPrincipalName == "" {
				logger.Warn("sqlstore: skipping user info entry without objectId or userPrincipalName")
				continue
			}
			res, err := tx.ExecContext(ctx, query,
				u.ObjectID,
				u.UserPrincipalName,
				u.Email,
				u.DisplayName,
				u.TenantID,
				u.coExistenceMode(),
				u.GivenName,
				u.Surname,
				u.AccountEnabled,
				u.TenantName,
				u.Country,
				u.City,
				now.Format(time.DateOnly),
				now.Format(time.TimeOnly),
				now.Unix(),
			)
			if err != nil {
				return fmt.Errorf("insert %s: %w", u.ObjectID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("log user info: %w", err)
	}

	logger.Debug("sqlstore: %d of %d user info entries stored", inserted, len(users))
	return inserted, nil
}
