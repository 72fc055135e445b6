package store

import (
	"context"
	"fmt"
	"slices"

	"gagyebu/internal/core"
	"gagyebu/internal/repository"
)

// Collection is one record kind inside a State. Mutations are staged in a
// private slot, sent to the repository, and written into the visible items
// only once the repository confirms them. A failed call drops the staged
// change, so readers never see an unconfirmed record.
type Collection[T core.Record[T]] struct {
	state  *State
	kind   core.Kind
	repo   repository.Collection[T]
	items  []T
	staged map[int64]staged[T]
}

// staged is a mutation awaiting the repository.
type staged[T any] struct {
	op  Op
	id  string
	rec T
}

func newCollection[T core.Record[T]](s *State, kind core.Kind, repo repository.Collection[T]) *Collection[T] {
	return &Collection[T]{state: s, kind: kind, repo: repo, staged: map[int64]staged[T]{}}
}

func (c *Collection[T]) Kind() core.Kind { return c.kind }

// All returns a copy of the confirmed records, oldest first.
func (c *Collection[T]) All() []T {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	i := c.index(id)
	if i < 0 {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// stage parks a mutation and returns its key. Caller holds the lock.
func (c *Collection[T]) stage(op Op, id string, rec T) int64 {
	c.state.seq++
	c.staged[c.state.seq] = staged[T]{op: op, id: id, rec: rec}
	c.state.pending++
	return c.state.seq
}

// settle removes a staged mutation. Caller holds the lock.
func (c *Collection[T]) settle(key int64) {
	delete(c.staged, key)
	c.state.pending--
}

// Add validates rec, stamps the viewer as creator and persists it.
func (c *Collection[T]) Add(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := rec.Validate(); err != nil {
		return zero, err
	}

	c.state.mu.Lock()
	if err := c.state.checkOwner(rec); err != nil {
		c.state.mu.Unlock()
		return zero, err
	}
	viewer := c.state.viewer.ID
	rec = rec.WithMeta(core.Meta{CreatedBy: viewer})
	key := c.stage(OpCreate, "", rec)
	c.state.mu.Unlock()

	saved, err := c.repo.Create(ctx, rec)

	c.state.mu.Lock()
	c.settle(key)
	if err != nil {
		c.state.mu.Unlock()
		return zero, fmt.Errorf("create %s: %w", c.kind, err)
	}
	if i := c.index(saved.Base().ID); i >= 0 {
		c.items[i] = saved
	} else {
		c.items = append(c.items, saved)
	}
	c.state.mu.Unlock()

	c.state.notify(ctx, Change{Kind: c.kind, Op: OpCreate, ID: saved.Base().ID, Viewer: viewer, Facts: core.FactsOf(saved)})
	return saved, nil
}

// Update replaces a visible record. The header of the cached record wins
// over whatever rec carries.
func (c *Collection[T]) Update(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := rec.Validate(); err != nil {
		return zero, err
	}

	c.state.mu.Lock()
	if err := c.state.checkOwner(rec); err != nil {
		c.state.mu.Unlock()
		return zero, err
	}
	id := rec.Base().ID
	i := c.index(id)
	if i < 0 {
		c.state.mu.Unlock()
		return zero, fmt.Errorf("update %s %s: %w", c.kind, id, repository.ErrNotFound)
	}
	rec = rec.WithMeta(c.items[i].Base())
	key := c.stage(OpUpdate, id, rec)
	viewer := c.state.viewer.ID
	c.state.mu.Unlock()

	saved, err := c.repo.Update(ctx, rec)

	c.state.mu.Lock()
	c.settle(key)
	if err != nil {
		c.state.mu.Unlock()
		return zero, fmt.Errorf("update %s %s: %w", c.kind, id, err)
	}
	// A concurrent Remove may have confirmed first; the delete stands.
	if i := c.index(id); i >= 0 {
		c.items[i] = saved
	}
	c.state.mu.Unlock()

	c.state.notify(ctx, Change{Kind: c.kind, Op: OpUpdate, ID: id, Viewer: viewer, Facts: core.FactsOf(saved)})
	return saved, nil
}

// Remove deletes a visible record.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	c.state.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.state.mu.Unlock()
		return fmt.Errorf("delete %s %s: %w", c.kind, id, repository.ErrNotFound)
	}
	before := c.items[i]
	key := c.stage(OpDelete, id, before)
	viewer := c.state.viewer.ID
	c.state.mu.Unlock()

	err := c.repo.Delete(ctx, id)

	c.state.mu.Lock()
	c.settle(key)
	if err != nil {
		c.state.mu.Unlock()
		return fmt.Errorf("delete %s %s: %w", c.kind, id, err)
	}
	if i := c.index(id); i >= 0 {
		c.items = slices.Delete(c.items, i, i+1)
	}
	c.state.mu.Unlock()

	c.state.notify(ctx, Change{Kind: c.kind, Op: OpDelete, ID: id, Viewer: viewer, Facts: core.FactsOf(before)})
	return nil
}

// index returns the position of id or -1. Caller holds the lock.
func (c *Collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(rec T) bool { return rec.Base().ID == id })
}
