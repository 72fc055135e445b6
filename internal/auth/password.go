package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"golang.org/x/crypto/bcrypt"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
)

// PasswordAuthenticator registers and verifies email/password accounts
// using bcrypt hashes.
type PasswordAuthenticator struct {
	accounts repository.Accounts
	cost     int
}

func NewPasswordAuthenticator(accounts repository.Accounts) *PasswordAuthenticator {
	return &PasswordAuthenticator{accounts: accounts, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

func (a *PasswordAuthenticator) Register(ctx context.Context, email, credential string) (core.Account, error) {
	email = core.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrInvalidEmail, email)
	}
	if err := a.ValidateCredential(credential); err != nil {
		return core.Account{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return core.Account{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := a.accounts.Create(ctx, core.Account{Email: email, PasswordHash: string(hashed)})
	if errors.Is(err, repository.ErrConflict) {
		return core.Account{}, ErrEmailExists
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (core.Account, error) {
	account, err := a.accounts.GetByEmail(ctx, email)
	if err != nil {
		return core.Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(credential)); err != nil {
		return core.Account{}, ErrInvalidCredentials
	}
	return account, nil
}
