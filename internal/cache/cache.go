// Package cache provides keyed, TTL-bound storage of notification
// lists plus the bounded FIFO queue of pending offline actions.
package cache

import (
	"sync"
	"time"

	"github.com/nhle/notify-agent/internal/model"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

// DefaultMaxPending bounds the pending-action queue. When the queue is
// full the oldest action is dropped to make room, so an indefinitely
// offline client cannot grow the queue without bound.
const DefaultMaxPending = 100

type entry struct {
	notifications []model.Notification
	storedAt      time.Time
	ttl           time.Duration
}

// Cache is a snapshot store for notification lists. Entries expire
// lazily on read and eagerly during Cleanup sweeps. All lists are
// defensively copied on both write and read, so callers can never
// mutate a stored snapshot in place.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	pending    []model.PendingAction
	maxPending int

	stopCh chan struct{}
	closed bool

	// now is replaceable in tests.
	now func() time.Time
}

// New creates an empty cache with the default pending-queue bound.
func New() *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		maxPending: DefaultMaxPending,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// SetMaxPending overrides the pending-queue bound. Values below one
// are ignored.
func (c *Cache) SetMaxPending(n int) {
	if n < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxPending = n
}

// Set stores a snapshot of notifications under key with the given ttl.
// A non-positive ttl falls back to DefaultTTL.
func (c *Cache) Set(key string, notifications []model.Notification, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		notifications: copyList(notifications),
		storedAt:      c.now(),
		ttl:           ttl,
	}
}

// Get returns the stored snapshot for key, or nil if the key is absent
// or the entry has expired. Expired entries are deleted on read.
func (c *Cache) Get(key string) []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(e.storedAt) > e.ttl {
		delete(c.entries, key)
		return nil
	}
	return copyList(e.notifications)
}

// UpdateNotification merges patch into the cached notification with
// the given id under key. A missing key or id is a no-op; this is the
// targeted-merge path used by optimistic updates, which must not force
// a full-list replace.
func (c *Cache) UpdateNotification(key, id string, patch func(*model.Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	for i := range e.notifications {
		if e.notifications[i].ID == id {
			patch(&e.notifications[i])
			return
		}
	}
}

// Delete removes the entry stored under key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Cleanup eagerly sweeps every expired entry.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.storedAt) > e.ttl {
			delete(c.entries, key)
		}
	}
}

// StartCleanup launches a background sweep at the given interval.
// Stopped by Close.
func (c *Cache) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// AddPendingAction appends an action to the queue, preserving FIFO
// order. When the queue is at its bound the oldest action is dropped.
func (c *Cache) AddPendingAction(a model.PendingAction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) >= c.maxPending {
		c.pending = c.pending[1:]
	}
	c.pending = append(c.pending, a)
}

// PendingActions returns a snapshot copy of the queue in insertion
// order.
func (c *Cache) PendingActions() []model.PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.PendingAction, len(c.pending))
	copy(out, c.pending)
	return out
}

// RemovePendingAction deletes the action with the given id from the
// queue. Unknown ids are ignored.
func (c *Cache) RemovePendingAction(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, a := range c.pending {
		if a.ID == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// Clear drops every entry and pending action.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.pending = nil
}

// Close stops the background cleanup loop. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.stopCh)
}

// copyList returns a shallow copy of the slice. Metadata maps are
// copied too, since patches may touch them.
func copyList(in []model.Notification) []model.Notification {
	out := make([]model.Notification, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Metadata != nil {
			md := make(map[string]string, len(out[i].Metadata))
			for k, v := range out[i].Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
	}
	return out
}
