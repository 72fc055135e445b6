package core

import (
	"errors"
	"time"
)

// Invitation statuses. EXPIRED is never stored; it is derived at read time
// from the expiry timestamp.
const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRejected InvitationStatus = "REJECTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

const (
	InvitationCodeLength = 8
	InvitationTTL        = 7 * 24 * time.Hour
)

type InvitationStatus string

type Invitation struct {
	ID           string           `json:"id"`
	InviterID    string           `json:"inviterId"`
	InviteeEmail string           `json:"inviteeEmail"`
	Code         string           `json:"invitationCode"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
}

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvitationNotFound = errors.New("invalid invitation")
	ErrEmailMismatch      = errors.New("invitation was sent to a different email")
	ErrSelfInvitation     = errors.New("cannot invite yourself")
	ErrAlreadyLinked      = errors.New("already linked to a partner")
)

// Active reports whether the invitation can still be accepted or rejected.
func (i Invitation) Active(now time.Time) bool {
	return i.Status == InvitationPending && i.ExpiresAt.After(now)
}

// StatusAt reports the status as seen at now. Pending invitations past
// their expiry read as EXPIRED.
func (i Invitation) StatusAt(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && !i.ExpiresAt.After(now) {
		return InvitationExpired
	}
	return i.Status
}

// AddressedTo reports whether email matches the invitee address after
// normalization.
func (i Invitation) AddressedTo(email string) bool {
	return NormalizeEmail(i.InviteeEmail) == NormalizeEmail(email)
}
