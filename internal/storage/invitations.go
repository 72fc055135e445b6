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

type invitationStore struct{ r *SQLiteRepository }

const invitationColumns = "id, inviter_id, invitee_email, invitation_code, status, created_at, expires_at"

func scanInvitation(sc scanner) (core.Invitation, error) {
	var (
		inv                  core.Invitation
		status               string
		createdAt, expiresAt string
	)
	if err := sc.Scan(&inv.ID, &inv.InviterID, &inv.InviteeEmail, &inv.Code, &status, &createdAt, &expiresAt); err != nil {
		return inv, notFound(err)
	}
	inv.Status = core.InvitationStatus(status)
	var err1, err2 error
	inv.CreatedAt, err1 = parseTime(createdAt)
	inv.ExpiresAt, err2 = parseTime(expiresAt)
	return inv, errors.Join(err1, err2)
}

func (s invitationStore) Create(ctx context.Context, inv core.Invitation) (core.Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Status == "" {
		inv.Status = core.InvitationPending
	}
	inv.InviteeEmail = core.NormalizeEmail(inv.InviteeEmail)

	_, err := s.r.db.ExecContext(ctx,
		"INSERT INTO invitations ("+invitationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		inv.ID, inv.InviterID, inv.InviteeEmail, inv.Code, string(inv.Status),
		formatTime(inv.CreatedAt), formatTime(inv.ExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Invitation{}, repository.ErrConflict
		}
		return core.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

func (s invitationStore) GetByCode(ctx context.Context, code string) (core.Invitation, error) {
	return scanInvitation(s.r.db.QueryRowContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE invitation_code = ?", code))
}

func (s invitationStore) ListByInviter(ctx context.Context, inviterID string) ([]core.Invitation, error) {
	return s.list(ctx, "WHERE inviter_id = ?", inviterID)
}

func (s invitationStore) ListByEmail(ctx context.Context, email string) ([]core.Invitation, error) {
	return s.list(ctx, "WHERE invitee_email = ?", core.NormalizeEmail(email))
}

func (s invitationStore) list(ctx context.Context, where string, arg any) ([]core.Invitation, error) {
	rows, err := s.r.db.QueryContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations "+where+" ORDER BY created_at DESC", arg)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var out []core.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s invitationStore) Reject(ctx context.Context, id string) error {
	return s.r.withTx(ctx, func(tx *sql.Tx) error {
		return flipPending(ctx, tx, id, core.InvitationRejected)
	})
}

// flipPending moves a PENDING invitation to status. A missing row is
// ErrNotFound, a row in any other status is ErrConflict.
func flipPending(ctx context.Context, tx *sql.Tx, id string, status core.InvitationStatus) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE invitations SET status = ? WHERE id = ? AND status = ?",
		string(status), id, string(core.InvitationPending))
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM invitations WHERE id = ?", id).Scan(&exists); err != nil {
		return notFound(err)
	}
	return repository.ErrConflict
}

func (s invitationStore) Accept(ctx context.Context, id, inviteeID string) (core.User, core.User, error) {
	var inviter, invitee core.User
	err := s.r.withTx(ctx, func(tx *sql.Tx) error {
		if err := flipPending(ctx, tx, id, core.InvitationAccepted); err != nil {
			return err
		}

		var inviterID string
		if err := tx.QueryRowContext(ctx, "SELECT inviter_id FROM invitations WHERE id = ?", id).Scan(&inviterID); err != nil {
			return notFound(err)
		}

		var err error
		if inviter, err = getUser(ctx, tx, inviterID); err != nil {
			return err
		}
		if invitee, err = getUser(ctx, tx, inviteeID); err != nil {
			return err
		}
		if inviter.HasPartner() || invitee.HasPartner() {
			return core.ErrAlreadyLinked
		}

		now := s.r.now().UTC()
		invitee.Slot = inviter.Slot.Opposite()
		invitee.PartnerID, invitee.UpdatedAt = inviter.ID, now
		inviter.PartnerID, inviter.UpdatedAt = invitee.ID, now

		for _, u := range []core.User{inviter, invitee} {
			if _, err := tx.ExecContext(ctx,
				"UPDATE users SET type = ?, partner_id = ?, updated_at = ? WHERE id = ?",
				string(u.Slot), u.PartnerID, formatTime(now), u.ID); err != nil {
				return fmt.Errorf("link user %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return core.User{}, core.User{}, err
	}
	return inviter, invitee, nil
}
