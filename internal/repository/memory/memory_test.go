package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

func TestCollectionScopesByCreator(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, owner := range []string{"u1", "u2", "u3"} {
		_, err := s.Salaries().Create(ctx, core.Salary{
			Meta:   core.Meta{CreatedBy: owner},
			UserID: owner,
			Amount: core.Money{Won: 1000},
			Date:   core.NewDate(2025, 10, 1),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.Salaries().List(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 salaries, got %d", len(got))
	}
	for _, rec := range got {
		if rec.ID == "" || rec.CreatedAt.IsZero() {
			t.Fatalf("expected stamped meta, got %+v", rec.Meta)
		}
	}
}

func TestCollectionUpdateKeepsMeta(t *testing.T) {
	ctx := context.Background()
	s := New()
	created, _ := s.Goals().Create(ctx, core.Goal{
		Meta:         core.Meta{CreatedBy: "u1"},
		Title:        "trip",
		TargetAmount: core.Money{Won: 100},
	})

	edit := created
	edit.Title = "house"
	edit.CreatedBy = "intruder"
	updated, err := s.Goals().Update(ctx, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "house" || updated.CreatedBy != "u1" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := s.Goals().Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Goals().Delete(ctx, created.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestAcceptLinksBothUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	inviter, _ := s.Users().Create(ctx, core.User{Name: "a", Slot: core.SlotPartner1})
	invitee, _ := s.Users().Create(ctx, core.User{Name: "b"})
	inv, _ := s.Invitations().Create(ctx, core.Invitation{
		InviterID:    inviter.ID,
		InviteeEmail: "B@Example.com",
		Code:         "ABCD1234",
		Status:       core.InvitationPending,
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	gotInviter, gotInvitee, err := s.Invitations().Accept(ctx, inv.ID, invitee.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if gotInviter.PartnerID != invitee.ID || gotInvitee.PartnerID != inviter.ID {
		t.Fatalf("asymmetric link: %+v %+v", gotInviter, gotInvitee)
	}
	if gotInvitee.Slot != core.SlotPartner2 {
		t.Fatalf("invitee slot = %q, want PARTNER_2", gotInvitee.Slot)
	}

	if _, _, err := s.Invitations().Accept(ctx, inv.ID, invitee.ID); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("second accept err = %v, want ErrConflict", err)
	}

	partnerID, err := s.Users().Unlink(ctx, invitee.ID)
	if err != nil || partnerID != inviter.ID {
		t.Fatalf("unlink = %q, %v", partnerID, err)
	}
	a, _ := s.Users().Get(ctx, inviter.ID)
	b, _ := s.Users().Get(ctx, invitee.ID)
	if a.PartnerID != "" || b.PartnerID != "" {
		t.Fatalf("expected both sides cleared, got %q and %q", a.PartnerID, b.PartnerID)
	}
}

func TestSnapshotUpsertKeepsOnePerDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := core.NewDate(2025, 10, 15)
	first, _ := s.Snapshots().Upsert(ctx, core.InvestmentSnapshot{UserID: "u1", Date: day, InvestmentAmount: core.Money{Won: 1}})
	second, _ := s.Snapshots().Upsert(ctx, core.InvestmentSnapshot{UserID: "u1", Date: day, InvestmentAmount: core.Money{Won: 2}})
	if first.ID != second.ID {
		t.Fatalf("expected upsert to keep id %q, got %q", first.ID, second.ID)
	}
	snaps, _ := s.Snapshots().List(ctx, []string{"u1"})
	if len(snaps) != 1 || snaps[0].InvestmentAmount.Won != 2 {
		t.Fatalf("unexpected snapshots: %+v", snaps)
	}
}
