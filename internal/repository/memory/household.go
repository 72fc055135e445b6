package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

type accounts struct{ s *Store }

func (a accounts) Create(ctx context.Context, acc core.Account) (core.Account, error) {
	if err := ctx.Err(); err != nil {
		return core.Account{}, err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc.Email = core.NormalizeEmail(acc.Email)
	for _, existing := range a.s.accounts {
		if existing.Email == acc.Email {
			return core.Account{}, repository.ErrConflict
		}
	}
	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = a.s.now().UTC()
	}
	a.s.accounts[acc.ID] = acc
	return acc, nil
}

func (a accounts) Get(ctx context.Context, id string) (core.Account, error) {
	if err := ctx.Err(); err != nil {
		return core.Account{}, err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[id]
	if !ok {
		return core.Account{}, repository.ErrNotFound
	}
	return acc, nil
}

func (a accounts) GetByEmail(ctx context.Context, email string) (core.Account, error) {
	if err := ctx.Err(); err != nil {
		return core.Account{}, err
	}
	email = core.NormalizeEmail(email)
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, acc := range a.s.accounts {
		if acc.Email == email {
			return acc, nil
		}
	}
	return core.Account{}, repository.ErrNotFound
}

type users struct{ s *Store }

func (u users) Get(ctx context.Context, id string) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (u users) List(ctx context.Context) ([]core.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	out := make([]core.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		out = append(out, user)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (u users) GetByAuthID(ctx context.Context, authID string) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.AuthID == authID {
			return user, nil
		}
	}
	return core.User{}, repository.ErrNotFound
}

func (u users) Create(ctx context.Context, user core.User) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if user.AuthID != "" && existing.AuthID == user.AuthID {
			return core.User{}, repository.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, exists := u.s.users[user.ID]; exists {
		return core.User{}, repository.ErrConflict
	}
	now := u.s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	u.s.users[user.ID] = user
	return user, nil
}

func (u users) Update(ctx context.Context, user core.User) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	old, ok := u.s.users[user.ID]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	old.Name = user.Name
	old.Character = user.Character
	old.Slot = user.Slot
	old.UpdatedAt = u.s.now().UTC()
	u.s.users[old.ID] = old
	return old, nil
}

func (u users) Unlink(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	partnerID := user.PartnerID
	if partnerID == "" {
		return "", nil
	}
	now := u.s.now().UTC()
	user.PartnerID, user.UpdatedAt = "", now
	u.s.users[userID] = user
	if partner, ok := u.s.users[partnerID]; ok && partner.PartnerID == userID {
		partner.PartnerID, partner.UpdatedAt = "", now
		u.s.users[partnerID] = partner
	}
	return partnerID, nil
}

type invitations struct{ s *Store }

func (i invitations) Create(ctx context.Context, inv core.Invitation) (core.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return core.Invitation{}, err
	}
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	for _, existing := range i.s.invitations {
		if existing.Code == inv.Code {
			return core.Invitation{}, repository.ErrConflict
		}
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.InviteeEmail = core.NormalizeEmail(inv.InviteeEmail)
	i.s.invitations[inv.ID] = inv
	return inv, nil
}

func (i invitations) GetByCode(ctx context.Context, code string) (core.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return core.Invitation{}, err
	}
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	for _, inv := range i.s.invitations {
		if inv.Code == code {
			return inv, nil
		}
	}
	return core.Invitation{}, repository.ErrNotFound
}

func (i invitations) ListByInviter(ctx context.Context, inviterID string) ([]core.Invitation, error) {
	return i.filter(ctx, func(inv core.Invitation) bool { return inv.InviterID == inviterID })
}

func (i invitations) ListByEmail(ctx context.Context, email string) ([]core.Invitation, error) {
	email = core.NormalizeEmail(email)
	return i.filter(ctx, func(inv core.Invitation) bool { return inv.InviteeEmail == email })
}

// filter returns matching invitations, newest first.
func (i invitations) filter(ctx context.Context, keep func(core.Invitation) bool) ([]core.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	var out []core.Invitation
	for _, inv := range i.s.invitations {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (i invitations) Reject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	inv, ok := i.s.invitations[id]
	if !ok {
		return repository.ErrNotFound
	}
	if inv.Status != core.InvitationPending {
		return repository.ErrConflict
	}
	inv.Status = core.InvitationRejected
	i.s.invitations[id] = inv
	return nil
}

func (i invitations) Accept(ctx context.Context, id, inviteeID string) (core.User, core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, core.User{}, err
	}
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	inv, ok := i.s.invitations[id]
	if !ok {
		return core.User{}, core.User{}, repository.ErrNotFound
	}
	if inv.Status != core.InvitationPending {
		return core.User{}, core.User{}, repository.ErrConflict
	}
	inviter, ok := i.s.users[inv.InviterID]
	if !ok {
		return core.User{}, core.User{}, repository.ErrNotFound
	}
	invitee, ok := i.s.users[inviteeID]
	if !ok {
		return core.User{}, core.User{}, repository.ErrNotFound
	}
	if inviter.HasPartner() || invitee.HasPartner() {
		return core.User{}, core.User{}, core.ErrAlreadyLinked
	}

	now := i.s.now().UTC()
	inv.Status = core.InvitationAccepted
	invitee.Slot = inviter.Slot.Opposite()
	invitee.PartnerID, invitee.UpdatedAt = inviter.ID, now
	inviter.PartnerID, inviter.UpdatedAt = invitee.ID, now

	i.s.invitations[id] = inv
	i.s.users[inviter.ID] = inviter
	i.s.users[invitee.ID] = invitee
	return inviter, invitee, nil
}

type snapshots struct{ s *Store }

func snapshotKey(userID string, d core.Date) string { return userID + "|" + d.String() }

func (sn snapshots) Upsert(ctx context.Context, snap core.InvestmentSnapshot) (core.InvestmentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.InvestmentSnapshot{}, err
	}
	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	key := snapshotKey(snap.UserID, snap.Date)
	if old, ok := sn.s.snapshots[key]; ok {
		snap.ID, snap.CreatedAt = old.ID, old.CreatedAt
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = sn.s.now().UTC()
	}
	sn.s.snapshots[key] = snap
	return snap, nil
}

func (sn snapshots) List(ctx context.Context, userIDs []string) ([]core.InvestmentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	var out []core.InvestmentSnapshot
	for _, snap := range sn.s.snapshots {
		if slices.Contains(userIDs, snap.UserID) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date.Before(out[b].Date.Time) })
	return out, nil
}

type connections struct{ s *Store }

func (c connections) Get(ctx context.Context, userID string) (core.BrokerConnection, error) {
	if err := ctx.Err(); err != nil {
		return core.BrokerConnection{}, err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	conn, ok := c.s.connections[userID]
	if !ok {
		return core.BrokerConnection{}, repository.ErrNotFound
	}
	return conn, nil
}

func (c connections) Save(ctx context.Context, conn core.BrokerConnection) (core.BrokerConnection, error) {
	if err := ctx.Err(); err != nil {
		return core.BrokerConnection{}, err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	now := c.s.now().UTC()
	if old, ok := c.s.connections[conn.UserID]; ok {
		conn.CreatedAt = old.CreatedAt
	} else {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	c.s.connections[conn.UserID] = conn
	return conn, nil
}

func (c connections) SaveToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	conn, ok := c.s.connections[userID]
	if !ok {
		return repository.ErrNotFound
	}
	conn.AccessToken, conn.TokenExpiresAt = token, expiresAt
	c.s.connections[userID] = conn
	return nil
}

func (c connections) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, ok := c.s.connections[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(c.s.connections, userID)
	return nil
}

func (c connections) List(ctx context.Context) ([]core.BrokerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := make([]core.BrokerConnection, 0, len(c.s.connections))
	for _, conn := range c.s.connections {
		out = append(out, conn)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UserID < out[b].UserID })
	return out, nil
}
