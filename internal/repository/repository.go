// Package repository declares the persistence ports used by the household
// state and services. Implementations live in internal/storage (SQLite) and
// internal/repository/memory.
package repository

import (
	"context"
	"errors"
	"time"

	"gagyebu/internal/core"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Collection persists one record kind. List returns the records created by
// any of owners, oldest first. Create assigns the id and creation time when
// they are empty.
type Collection[T core.Record[T]] interface {
	List(ctx context.Context, owners []string) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, rec T) (T, error)
	Delete(ctx context.Context, id string) error
}

type Accounts interface {
	Create(ctx context.Context, a core.Account) (core.Account, error)
	Get(ctx context.Context, id string) (core.Account, error)
	GetByEmail(ctx context.Context, email string) (core.Account, error)
}

type Users interface {
	Get(ctx context.Context, id string) (core.User, error)
	GetByAuthID(ctx context.Context, authID string) (core.User, error)
	Create(ctx context.Context, u core.User) (core.User, error)
	Update(ctx context.Context, u core.User) (core.User, error)
	// List returns every user ordered by id.
	List(ctx context.Context) ([]core.User, error)

	// Unlink clears partnerId on the user and on whoever it points at in a
	// single transaction. It returns the former partner id, empty when the
	// user was not linked.
	Unlink(ctx context.Context, userID string) (string, error)
}

type Invitations interface {
	Create(ctx context.Context, inv core.Invitation) (core.Invitation, error)
	GetByCode(ctx context.Context, code string) (core.Invitation, error)
	ListByInviter(ctx context.Context, inviterID string) ([]core.Invitation, error)
	ListByEmail(ctx context.Context, email string) ([]core.Invitation, error)
	Reject(ctx context.Context, id string) error

	// Accept flips a PENDING invitation to ACCEPTED and links inviter and
	// invitee in one transaction. The invitee takes the slot opposite the
	// inviter's. It fails with ErrConflict when the invitation is no longer
	// pending and with core.ErrAlreadyLinked when either side has a partner.
	Accept(ctx context.Context, id, inviteeID string) (inviter, invitee core.User, err error)
}

type Snapshots interface {
	// Upsert keeps at most one snapshot per user and date.
	Upsert(ctx context.Context, s core.InvestmentSnapshot) (core.InvestmentSnapshot, error)
	List(ctx context.Context, userIDs []string) ([]core.InvestmentSnapshot, error)
}

type Connections interface {
	Get(ctx context.Context, userID string) (core.BrokerConnection, error)
	Save(ctx context.Context, c core.BrokerConnection) (core.BrokerConnection, error)
	SaveToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]core.BrokerConnection, error)
}

// Repository groups every port behind one handle.
type Repository interface {
	Accounts() Accounts
	Users() Users
	Invitations() Invitations
	Snapshots() Snapshots
	Connections() Connections

	Salaries() Collection[core.Salary]
	FixedExpenses() Collection[core.FixedExpense]
	LivingExpenses() Collection[core.LivingExpense]
	Allowances() Collection[core.Allowance]
	Ledger() Collection[core.LedgerTransaction]
	Savings() Collection[core.Savings]
	Investments() Collection[core.Investment]
	Goals() Collection[core.Goal]

	Ping(ctx context.Context) error
	Close() error
}
