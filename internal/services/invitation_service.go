package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/repository"
)

const (
	codeAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeGenRetries = 5
)

// Viewer is the authenticated account making a request.
type Viewer struct {
	AccountID string
	Email     string
}

type InvitationService struct {
	Deps
	household *HouseholdService
	newCode   func() (string, error)
}

func NewInvitationService(deps Deps, household *HouseholdService) *InvitationService {
	return &InvitationService{
		Deps:      deps.withDefaults(applog.ComponentInvitation),
		household: household,
		newCode:   generateCode,
	}
}

// generateCode draws InvitationCodeLength characters from codeAlphabet.
func generateCode() (string, error) {
	buf := make([]byte, core.InvitationCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invitation code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create invites email to join the viewer's household.
func (s *InvitationService) Create(ctx context.Context, v Viewer, email string) (core.Invitation, error) {
	email = core.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return core.Invitation{}, core.ErrInvalidEmail
	}
	if email == core.NormalizeEmail(v.Email) {
		return core.Invitation{}, core.ErrSelfInvitation
	}

	inviter, err := s.household.EnsureUser(ctx, v.AccountID, v.Email)
	if err != nil {
		return core.Invitation{}, err
	}
	if inviter.HasPartner() {
		return core.Invitation{}, core.ErrAlreadyLinked
	}
	if inviter.Slot == "" {
		inviter.Slot = core.SlotPartner1
		if inviter, err = s.Repo.Users().Update(ctx, inviter); err != nil {
			return core.Invitation{}, fmt.Errorf("assign partner slot: %w", err)
		}
	}

	now := s.Now().UTC()
	for attempt := 0; attempt < codeGenRetries; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return core.Invitation{}, err
		}
		inv, err := s.Repo.Invitations().Create(ctx, core.Invitation{
			InviterID:    inviter.ID,
			InviteeEmail: email,
			Code:         code,
			Status:       core.InvitationPending,
			CreatedAt:    now,
			ExpiresAt:    now.Add(core.InvitationTTL),
		})
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return core.Invitation{}, fmt.Errorf("create invitation: %w", err)
		}
		s.Metrics.Invitation("create")
		s.Logger.InfoContext(ctx, "Invitation created",
			applog.FieldInvitationID, inv.ID,
			applog.FieldUserID, inviter.ID,
			applog.FieldOperation, applog.OpCreate)
		return inv, nil
	}
	return core.Invitation{}, fmt.Errorf("create invitation: %w: no free code after %d attempts", repository.ErrConflict, codeGenRetries)
}

// GetByCode returns a pending, unexpired invitation.
func (s *InvitationService) GetByCode(ctx context.Context, code string) (core.Invitation, error) {
	inv, err := s.Repo.Invitations().GetByCode(ctx, normalizeCode(code))
	if errors.Is(err, repository.ErrNotFound) {
		return core.Invitation{}, core.ErrInvitationNotFound
	}
	if err != nil {
		return core.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	if !inv.Active(s.Now()) {
		return core.Invitation{}, core.ErrInvitationNotFound
	}
	return inv, nil
}

// addressed looks the code up and checks it was sent to the viewer.
func (s *InvitationService) addressed(ctx context.Context, v Viewer, code string) (core.Invitation, error) {
	inv, err := s.GetByCode(ctx, code)
	if err != nil {
		return core.Invitation{}, err
	}
	if !inv.AddressedTo(v.Email) {
		return core.Invitation{}, core.ErrEmailMismatch
	}
	return inv, nil
}

// AcceptProfile lets the invitee name themselves while accepting. Nil
// fields keep the current value.
type AcceptProfile struct {
	Name      *string `json:"name"`
	Character *string `json:"character"`
}

// Accept links the viewer with the inviter. Both users' cached states are
// dropped so the next read loads the joined household.
func (s *InvitationService) Accept(ctx context.Context, v Viewer, code string, p AcceptProfile) (core.User, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return core.User{}, core.ErrEmptyName
	}
	inv, err := s.addressed(ctx, v, code)
	if err != nil {
		return core.User{}, err
	}
	invitee, err := s.household.EnsureUser(ctx, v.AccountID, v.Email)
	if err != nil {
		return core.User{}, err
	}
	if invitee.ID == inv.InviterID {
		return core.User{}, core.ErrSelfInvitation
	}

	inviter, invitee, err := s.Repo.Invitations().Accept(ctx, inv.ID, invitee.ID)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return core.User{}, core.ErrInvitationNotFound
	case err != nil:
		return core.User{}, fmt.Errorf("accept invitation: %w", err)
	}

	s.household.Invalidate(inviter.ID, invitee.ID)
	s.Metrics.Invitation("accept")
	s.Logger.InfoContext(ctx, "Partners linked",
		applog.FieldInvitationID, inv.ID,
		applog.FieldUserID, invitee.ID,
		applog.FieldPartnerID, inviter.ID,
		applog.FieldOperation, applog.OpLink)

	if p.Name != nil || p.Character != nil {
		return s.household.UpdateProfile(ctx, invitee, ProfileUpdate{Name: p.Name, Character: p.Character})
	}
	return invitee, nil
}

func (s *InvitationService) Reject(ctx context.Context, v Viewer, code string) error {
	inv, err := s.addressed(ctx, v, code)
	if err != nil {
		return err
	}
	err = s.Repo.Invitations().Reject(ctx, inv.ID)
	switch {
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrNotFound):
		return core.ErrInvitationNotFound
	case err != nil:
		return fmt.Errorf("reject invitation: %w", err)
	}
	s.Metrics.Invitation("reject")
	return nil
}

// Sent lists the viewer's invitations, newest first, with expired pending
// ones reported as EXPIRED.
func (s *InvitationService) Sent(ctx context.Context, v Viewer) ([]core.Invitation, error) {
	inviter, err := s.Repo.Users().GetByAuthID(ctx, v.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return []core.Invitation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	invs, err := s.Repo.Invitations().ListByInviter(ctx, inviter.ID)
	if err != nil {
		return nil, fmt.Errorf("list sent invitations: %w", err)
	}
	now := s.Now()
	for i := range invs {
		invs[i].Status = invs[i].StatusAt(now)
	}
	return nonNil(invs), nil
}

// Received lists active invitations addressed to the viewer, newest first.
func (s *InvitationService) Received(ctx context.Context, v Viewer) ([]core.Invitation, error) {
	invs, err := s.Repo.Invitations().ListByEmail(ctx, core.NormalizeEmail(v.Email))
	if err != nil {
		return nil, fmt.Errorf("list received invitations: %w", err)
	}
	now := s.Now()
	invs = slices.DeleteFunc(invs, func(inv core.Invitation) bool { return !inv.Active(now) })
	return nonNil(invs), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
