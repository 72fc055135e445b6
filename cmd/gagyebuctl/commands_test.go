package main

import (
	"context"
	"testing"

	"gagyebu/internal/core"
	"gagyebu/internal/repository/memory"
)

func TestLookupUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acc, err := repo.Accounts().Create(ctx, core.Account{Email: "alice@example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	u, err := repo.Users().Create(ctx, core.User{AuthID: acc.ID, Name: "alice"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"by id", u.ID, false},
		{"by email", "Alice@Example.com", false},
		{"unknown email", "nobody@example.com", true},
		{"unknown id", "missing", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lookupUser(ctx, repo, tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("lookupUser(%q) = %+v, want error", tt.ref, got)
				}
				return
			}
			if err != nil || got.ID != u.ID {
				t.Fatalf("lookupUser(%q) = %+v, %v", tt.ref, got, err)
			}
		})
	}
}

func TestMonthFlag(t *testing.T) {
	m, err := monthFlag("2025-10")
	if err != nil || m.String() != "2025-10" {
		t.Fatalf("monthFlag = %v, %v", m, err)
	}
	if _, err := monthFlag("10/2025"); err == nil {
		t.Fatal("expected error for malformed month")
	}
	if _, err := monthFlag(""); err != nil {
		t.Fatalf("default month: %v", err)
	}
}
