// Package service owns the authoritative in-memory notification set.
// It orchestrates fetches and mutations against the backend, performs
// optimistic updates with rollback, and fans changes out to
// subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notify-agent/internal/errs"
	"github.com/nhle/notify-agent/internal/model"
)

// Backend is the contract the service needs from the API client.
// Defined here so tests can substitute a stub.
type Backend interface {
	List(ctx context.Context, opts model.ListOptions) (*model.ListResult, error)
	Get(ctx context.Context, id string) (*model.Notification, error)
	Create(ctx context.Context, n model.Notification) (*model.Notification, error)
	Update(ctx context.Context, id string, patch model.UpdatePatch) (*model.Notification, error)
	Delete(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int, error)
	BulkUpdate(ctx context.Context, ids []string, patch model.UpdatePatch) (int, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// State is the service's connection lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateConnected State = "connected"
	StateError     State = "error"
)

// Listener receives the full notification set after every change.
type Listener func([]model.Notification)

type subscriber struct {
	id int
	fn Listener
}

// Service is the core orchestrator. It is the only writer of the
// authoritative set and of in-memory read state; callers go through
// its public contract and receive copies, never internal slices.
type Service struct {
	backend Backend
	log     *logrus.Entry

	mu            sync.Mutex
	state         State
	notifications []model.Notification
	byID          map[string]model.Notification
	subscribers   []subscriber
	nextSubID     int

	pollInterval time.Duration
	pollStopCh   chan struct{}
	polling      bool

	disposed bool
}

// New creates a service backed by the given client. pollInterval of
// zero disables polling until StartPolling is called with a positive
// interval configured.
func New(backend Backend, pollInterval time.Duration) *Service {
	return &Service{
		backend:      backend,
		log:          logrus.WithField("component", "notification-service"),
		state:        StateIdle,
		byID:         make(map[string]model.Notification),
		pollInterval: pollInterval,
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notifications returns a copy of the authoritative set.
func (s *Service) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyList(s.notifications)
}

// FetchNotifications requests a page sorted by timestamp descending,
// replaces the authoritative set on success, and notifies subscribers.
// On failure it degrades to the id-indexed mirror's contents rather
// than blanking the UI; the error is surfaced only when no prior data
// exists.
func (s *Service) FetchNotifications(ctx context.Context, opts model.ListOptions) ([]model.Notification, error) {
	if opts.SortBy == "" {
		opts.SortBy = model.SortByTimestamp
	}
	if opts.SortOrder == "" {
		opts.SortOrder = model.SortDesc
	}

	s.setState(StateLoading)

	result, err := s.backend.List(ctx, opts)
	if err != nil {
		s.setState(StateError)
		norm := errs.Classify(err)
		s.log.WithError(norm).Warn("fetching notifications failed")

		fallback := s.mirrorSnapshot()
		if len(fallback) == 0 {
			return nil, norm
		}
		return fallback, nil
	}

	s.mu.Lock()
	s.notifications = copyList(result.Notifications)
	s.byID = make(map[string]model.Notification, len(result.Notifications))
	for _, n := range result.Notifications {
		s.byID[n.ID] = n
	}
	s.state = StateConnected
	s.mu.Unlock()

	s.notifySubscribers()
	return copyList(result.Notifications), nil
}

// MarkAsRead flags a notification as read, optimistically first.
// Marking an already-read notification is a no-op. On backend failure
// the flag rolls back to its prior value before the error is returned.
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	current, ok := s.byID[id]
	if ok && current.Read {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if !ok {
		// Not in the local set; forward without optimism.
		if err := s.backend.MarkRead(ctx, id); err != nil {
			return errs.Classify(err)
		}
		return nil
	}

	return s.transact(ctx,
		func() func() {
			s.setRead(id, true)
			return func() { s.setRead(id, current.Read) }
		},
		func(ctx context.Context) error {
			return s.backend.MarkRead(ctx, id)
		},
	)
}

// MarkAllAsRead optimistically flips every unread notification, then
// confirms with the backend. On failure the exact prior state is
// restored, never a partial undo.
func (s *Service) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	snapshot := copyList(s.notifications)
	s.mu.Unlock()

	return s.transact(ctx,
		func() func() {
			s.mu.Lock()
			for i := range s.notifications {
				s.notifications[i].Read = true
				s.byID[s.notifications[i].ID] = s.notifications[i]
			}
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				s.notifications = copyList(snapshot)
				s.byID = make(map[string]model.Notification, len(snapshot))
				for _, n := range snapshot {
					s.byID[n.ID] = n
				}
				s.mu.Unlock()
			}
		},
		func(ctx context.Context) error {
			_, err := s.backend.MarkAllRead(ctx)
			return err
		},
	)
}

// CreateNotification validates, sanitizes, and submits a notification.
// Write-through only: the local set is updated after the backend has
// assigned the id, since optimism without a server id is unsafe.
func (s *Service) CreateNotification(ctx context.Context, n model.Notification) (*model.Notification, error) {
	n.Normalize()
	if err := n.Validate(); err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err.Error(), false, err)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	created, err := s.backend.Create(ctx, n)
	if err != nil {
		return nil, errs.Classify(err)
	}

	s.mu.Lock()
	s.notifications = append([]model.Notification{*created}, s.notifications...)
	s.byID[created.ID] = *created
	s.mu.Unlock()

	s.notifySubscribers()
	return created, nil
}

// DeleteNotification removes a notification locally and confirms with
// the backend, restoring the record on failure.
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	snapshot := copyList(s.notifications)
	s.mu.Unlock()

	return s.transact(ctx,
		func() func() {
			s.removeLocal(id)
			return func() { s.restoreSet(snapshot) }
		},
		func(ctx context.Context) error {
			return s.backend.Delete(ctx, id)
		},
	)
}

// UnreadCount prefers the backend-computed statistic and falls back to
// a local count over the authoritative set when the call fails.
func (s *Service) UnreadCount(ctx context.Context) int {
	stats, err := s.backend.Stats(ctx)
	if err == nil {
		return stats.Unread
	}
	s.log.WithError(err).Debug("stats unavailable, counting locally")

	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// ClearOldNotifications deletes every notification older than the
// cutoff. Deletions are issued independently: one failure does not
// abort the others, but any failure propagates after all items have
// been attempted.
func (s *Service) ClearOldNotifications(ctx context.Context, days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)

	s.mu.Lock()
	var old []string
	for _, n := range s.notifications {
		if n.Timestamp.Before(cutoff) {
			old = append(old, n.ID)
		}
	}
	s.mu.Unlock()

	var failures []error
	removed := false
	for _, id := range old {
		if err := s.backend.Delete(ctx, id); err != nil {
			failures = append(failures, fmt.Errorf("deleting notification %s: %w", id, errs.Classify(err)))
			continue
		}
		s.removeLocal(id)
		removed = true
	}

	if removed {
		s.notifySubscribers()
	}
	return errors.Join(failures...)
}

// Subscribe registers a listener. It is invoked synchronously with the
// current set before Subscribe returns, so a late subscriber is never
// stuck in a stale empty state. The returned unsubscribe function is
// idempotent. Delivery order follows registration order.
func (s *Service) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	snapshot := copyList(s.notifications)
	s.mu.Unlock()

	s.deliver(fn, snapshot)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Service) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub.id == id {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// StartPolling begins refetching the notification list at the
// configured interval. A non-positive interval disables polling.
// Polling failures are logged, not surfaced; the next tick retries
// naturally.
func (s *Service) StartPolling() {
	s.mu.Lock()
	if s.polling || s.pollInterval <= 0 || s.disposed {
		s.mu.Unlock()
		return
	}
	s.polling = true
	s.pollStopCh = make(chan struct{})
	stopCh := s.pollStopCh
	interval := s.pollInterval
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if _, err := s.FetchNotifications(context.Background(), model.ListOptions{}); err != nil {
					s.log.WithError(err).Warn("polling fetch failed")
				}
			}
		}
	}()
}

// StopPolling halts the polling loop. Safe to call when not polling.
func (s *Service) StopPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.polling {
		return
	}
	close(s.pollStopCh)
	s.polling = false
}

// Dispose stops polling and clears listeners and local state. Safe to
// call multiple times.
func (s *Service) Dispose() {
	s.StopPolling()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.subscribers = nil
	s.notifications = nil
	s.byID = make(map[string]model.Notification)
	s.state = StateIdle
}

// transact is the shared optimistic-mutation helper: apply the change
// (which returns its own restore closure), notify, confirm with the
// backend, and on failure restore exactly and notify again. The
// restore-then-renotify happens synchronously relative to the failing
// call, so no subscriber ever observes a superseded state.
func (s *Service) transact(ctx context.Context, apply func() func(), confirm func(ctx context.Context) error) error {
	restore := apply()
	s.notifySubscribers()

	if err := confirm(ctx); err != nil {
		restore()
		s.notifySubscribers()
		return errs.Classify(err)
	}
	return nil
}

// setRead flips the read flag on the notification with the given id in
// both the set and the mirror.
func (s *Service) setRead(id string, read bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = read
			s.byID[id] = s.notifications[i]
			return
		}
	}
}

func (s *Service) removeLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
}

func (s *Service) restoreSet(snapshot []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = copyList(snapshot)
	s.byID = make(map[string]model.Notification, len(snapshot))
	for _, n := range snapshot {
		s.byID[n.ID] = n
	}
}

// mirrorSnapshot returns the id-indexed mirror's contents sorted
// newest first, for the fetch-failure fallback path.
func (s *Service) mirrorSnapshot() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Notification, 0, len(s.byID))
	for _, n := range s.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// notifySubscribers delivers the current set to every listener in
// registration order.
func (s *Service) notifySubscribers() {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	snapshot := copyList(s.notifications)
	s.mu.Unlock()

	for _, sub := range subs {
		s.deliver(sub.fn, snapshot)
	}
}

// deliver invokes a listener, isolating panics so one bad subscriber
// cannot break delivery to the others.
func (s *Service) deliver(fn Listener, snapshot []model.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Warn("subscriber panicked")
		}
	}()
	fn(snapshot)
}

func copyList(in []model.Notification) []model.Notification {
	out := make([]model.Notification, len(in))
	copy(out, in)
	return out
}
