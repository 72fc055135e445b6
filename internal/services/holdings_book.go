package services

import (
	"slices"
	"sync"
	"time"

	"gagyebu/internal/core"
)

// HoldingsEntry is the latest holdings read for one user.
type HoldingsEntry struct {
	UserID    string         `json:"userId"`
	Holdings  []core.Holding `json:"holdings"`
	Total     core.Money     `json:"totalEvalAmount"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// HoldingsBook keeps the last broker read per user and when each user last
// looked at their dashboard. Entries are replaced whole, so a reader never
// sees a half-updated list.
type HoldingsBook struct {
	mu      sync.RWMutex
	entries map[string]HoldingsEntry
	active  map[string]time.Time
	now     func() time.Time
}

func NewHoldingsBook() *HoldingsBook {
	return &HoldingsBook{
		entries: map[string]HoldingsEntry{},
		active:  map[string]time.Time{},
		now:     time.Now,
	}
}

func (b *HoldingsBook) Put(userID string, holdings []core.Holding, at time.Time) HoldingsEntry {
	e := HoldingsEntry{
		UserID:    userID,
		Holdings:  slices.Clone(holdings),
		Total:     core.HoldingsTotal(holdings),
		FetchedAt: at,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// A slower overlapping refresh must not overwrite a newer read.
	if cur, ok := b.entries[userID]; ok && cur.FetchedAt.After(at) {
		return cur
	}
	b.entries[userID] = e
	return e
}

func (b *HoldingsBook) Get(userID string) (HoldingsEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[userID]
	return e, ok
}

func (b *HoldingsBook) Drop(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, userID)
}

// Total sums the broker valuation of every listed user that has an entry.
// The boolean is false when none has.
func (b *HoldingsBook) Total(userIDs []string) (core.Money, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total core.Money
	found := false
	for _, id := range userIDs {
		if e, ok := b.entries[id]; ok {
			total = total.Add(e.Total)
			found = true
		}
	}
	return total, found
}

// Touch marks the users as active now.
func (b *HoldingsBook) Touch(userIDs ...string) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range userIDs {
		b.active[id] = now
	}
}

// Active returns users touched within window, sorted, and forgets the rest.
func (b *HoldingsBook) Active(window time.Duration) []string {
	cutoff := b.now().Add(-window)
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for id, at := range b.active {
		if at.Before(cutoff) {
			delete(b.active, id)
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
