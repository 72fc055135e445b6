package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

type snapshotStore struct{ r *SQLiteRepository }

func (s snapshotStore) Upsert(ctx context.Context, snap core.InvestmentSnapshot) (core.InvestmentSnapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.r.now().UTC()
	}

	var (
		id        string
		createdAt string
	)
	err := s.r.db.QueryRowContext(ctx,
		`INSERT INTO investment_snapshots
		   (id, user_id, snapshot_date, investment_amount, broker_total_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, snapshot_date) DO UPDATE SET
		   investment_amount = excluded.investment_amount,
		   broker_total_value = excluded.broker_total_value
		 RETURNING id, created_at`,
		snap.ID, snap.UserID, snap.Date.String(), snap.InvestmentAmount.Won, snap.BrokerTotal.Won,
		formatTime(snap.CreatedAt)).Scan(&id, &createdAt)
	if err != nil {
		return core.InvestmentSnapshot{}, fmt.Errorf("upsert snapshot: %w", err)
	}
	snap.ID = id
	snap.CreatedAt, err = parseTime(createdAt)
	return snap, err
}

func (s snapshotStore) List(ctx context.Context, userIDs []string) ([]core.InvestmentSnapshot, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	rows, err := s.r.db.QueryContext(ctx,
		`SELECT id, user_id, snapshot_date, investment_amount, broker_total_value, created_at
		 FROM investment_snapshots WHERE user_id IN (`+placeholders(len(userIDs))+`)
		 ORDER BY snapshot_date`, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.InvestmentSnapshot
	for rows.Next() {
		var (
			snap            core.InvestmentSnapshot
			date, createdAt string
		)
		if err := rows.Scan(&snap.ID, &snap.UserID, &date, &snap.InvestmentAmount.Won,
			&snap.BrokerTotal.Won, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var err1, err2 error
		snap.Date, err1 = parseDate(date)
		snap.CreatedAt, err2 = parseTime(createdAt)
		if err := errors.Join(err1, err2); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type connectionStore struct{ r *SQLiteRepository }

const connectionColumns = `user_id, app_key, app_secret, account_number, is_virtual,
	access_token, token_expires_at, created_at, updated_at`

func scanConnection(sc scanner) (core.BrokerConnection, error) {
	var (
		c                               core.BrokerConnection
		expiresAt, createdAt, updatedAt string
	)
	if err := sc.Scan(&c.UserID, &c.AppKey, &c.AppSecret, &c.AccountNumber, &c.Virtual,
		&c.AccessToken, &expiresAt, &createdAt, &updatedAt); err != nil {
		return c, notFound(err)
	}
	var err1, err2, err3 error
	c.TokenExpiresAt, err1 = parseTime(expiresAt)
	c.CreatedAt, err2 = parseTime(createdAt)
	c.UpdatedAt, err3 = parseTime(updatedAt)
	return c, errors.Join(err1, err2, err3)
}

func (s connectionStore) Get(ctx context.Context, userID string) (core.BrokerConnection, error) {
	return scanConnection(s.r.db.QueryRowContext(ctx,
		"SELECT "+connectionColumns+" FROM broker_connections WHERE user_id = ?", userID))
}

// Save replaces credentials. Changing credentials drops any cached token.
func (s connectionStore) Save(ctx context.Context, c core.BrokerConnection) (core.BrokerConnection, error) {
	now := formatTime(s.r.now())
	_, err := s.r.db.ExecContext(ctx,
		`INSERT INTO broker_connections (`+connectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   app_key = excluded.app_key,
		   app_secret = excluded.app_secret,
		   account_number = excluded.account_number,
		   is_virtual = excluded.is_virtual,
		   access_token = excluded.access_token,
		   token_expires_at = excluded.token_expires_at,
		   updated_at = excluded.updated_at`,
		c.UserID, c.AppKey, c.AppSecret, c.AccountNumber, c.Virtual,
		c.AccessToken, formatTime(c.TokenExpiresAt), now, now)
	if err != nil {
		return core.BrokerConnection{}, fmt.Errorf("save broker connection: %w", err)
	}
	return s.Get(ctx, c.UserID)
}

func (s connectionStore) SaveToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	res, err := s.r.db.ExecContext(ctx,
		"UPDATE broker_connections SET access_token = ?, token_expires_at = ? WHERE user_id = ?",
		token, formatTime(expiresAt), userID)
	if err != nil {
		return fmt.Errorf("save broker token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s connectionStore) Delete(ctx context.Context, userID string) error {
	res, err := s.r.db.ExecContext(ctx, "DELETE FROM broker_connections WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete broker connection: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s connectionStore) List(ctx context.Context) ([]core.BrokerConnection, error) {
	rows, err := s.r.db.QueryContext(ctx,
		"SELECT "+connectionColumns+" FROM broker_connections ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list broker connections: %w", err)
	}
	defer rows.Close()

	var out []core.BrokerConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan broker connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
