package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	AccountIDKey contextKey = "account_id"
	EmailKey     contextKey = "email"
)

// WithAccount returns ctx carrying the authenticated account.
func WithAccount(ctx context.Context, accountID, email string) context.Context {
	ctx = context.WithValue(ctx, AccountIDKey, accountID)
	return context.WithValue(ctx, EmailKey, email)
}

// AccountID extracts the authenticated account id, or "".
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(AccountIDKey).(string)
	return id
}

// Email extracts the authenticated email, or "".
func Email(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// RequireAuth validates the bearer token and stores the account in the
// request context. onFail writes the rejection.
func RequireAuth(jwtManager *JWTManager, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				onFail(w, r, err)
				return
			}
			claims, err := jwtManager.Validate(token)
			if err != nil {
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), claims.AccountID, claims.Email)))
		})
	}
}
