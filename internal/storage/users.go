package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

type accountStore struct{ r *SQLiteRepository }

const accountColumns = "id, email, password_hash, created_at"

func scanAccount(sc scanner) (core.Account, error) {
	var (
		a         core.Account
		createdAt string
	)
	if err := sc.Scan(&a.ID, &a.Email, &a.PasswordHash, &createdAt); err != nil {
		return a, notFound(err)
	}
	t, err := parseTime(createdAt)
	a.CreatedAt = t
	return a, err
}

func (s accountStore) Create(ctx context.Context, a core.Account) (core.Account, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.r.now().UTC()
	}
	a.Email = core.NormalizeEmail(a.Email)

	_, err := s.r.db.ExecContext(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES (?, ?, ?, ?)",
		a.ID, a.Email, a.PasswordHash, formatTime(a.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Account{}, repository.ErrConflict
		}
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (s accountStore) Get(ctx context.Context, id string) (core.Account, error) {
	return scanAccount(s.r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id))
}

func (s accountStore) GetByEmail(ctx context.Context, email string) (core.Account, error) {
	return scanAccount(s.r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = ?", core.NormalizeEmail(email)))
}

type userStore struct{ r *SQLiteRepository }

const userColumns = "id, auth_id, name, type, character, partner_id, created_at, updated_at"

func scanUser(sc scanner) (core.User, error) {
	var (
		u                    core.User
		authID, partnerID    sql.NullString
		slot                 string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&u.ID, &authID, &u.Name, &slot, &u.Character, &partnerID, &createdAt, &updatedAt); err != nil {
		return u, notFound(err)
	}
	u.AuthID, u.PartnerID, u.Slot = authID.String, partnerID.String, core.PartnerSlot(slot)
	var err1, err2 error
	u.CreatedAt, err1 = parseTime(createdAt)
	u.UpdatedAt, err2 = parseTime(updatedAt)
	return u, errors.Join(err1, err2)
}

func getUser(ctx context.Context, q querier, id string) (core.User, error) {
	return scanUser(q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s userStore) Get(ctx context.Context, id string) (core.User, error) {
	return getUser(ctx, s.r.db, id)
}

func (s userStore) List(ctx context.Context) ([]core.User, error) {
	rows, err := s.r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s userStore) GetByAuthID(ctx context.Context, authID string) (core.User, error) {
	return scanUser(s.r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE auth_id = ?", authID))
}

func (s userStore) Create(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := s.r.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, nullable(u.AuthID), u.Name, string(u.Slot), u.Character, nullable(u.PartnerID),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, repository.ErrConflict
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Update writes profile fields only; partner links change through Accept
// and Unlink.
func (s userStore) Update(ctx context.Context, u core.User) (core.User, error) {
	res, err := s.r.db.ExecContext(ctx,
		"UPDATE users SET name = ?, type = ?, character = ?, updated_at = ? WHERE id = ?",
		u.Name, string(u.Slot), u.Character, formatTime(s.r.now()), u.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.User{}, repository.ErrNotFound
	}
	return s.Get(ctx, u.ID)
}

func (s userStore) Unlink(ctx context.Context, userID string) (string, error) {
	var partnerID string
	err := s.r.withTx(ctx, func(tx *sql.Tx) error {
		user, err := getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		partnerID = user.PartnerID
		if partnerID == "" {
			return nil
		}
		now := formatTime(s.r.now())
		// Clear both directions, including a partner row that still
		// points back at the user.
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET partner_id = NULL, updated_at = ?
			 WHERE id = ? OR (id = ? AND partner_id = ?)`,
			now, userID, partnerID, userID)
		if err != nil {
			return fmt.Errorf("clear partner link: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return partnerID, nil
}
