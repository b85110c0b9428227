// Package offline composes the notification service with the local
// cache and the connection monitor to provide offline-first behavior:
// reads come from cache while offline, mutations queue as pending
// actions, and the queue replays when connectivity resumes.
package offline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notify-agent/internal/cache"
	"github.com/nhle/notify-agent/internal/connectivity"
	"github.com/nhle/notify-agent/internal/errs"
	"github.com/nhle/notify-agent/internal/model"
	"github.com/nhle/notify-agent/internal/retry"
	"github.com/nhle/notify-agent/internal/service"
	"github.com/nhle/notify-agent/internal/store"
)

// cacheKey is the single snapshot slot used for the notification list.
const cacheKey = "notifications"

// Core is the contract the offline layer needs from the base service.
type Core interface {
	FetchNotifications(ctx context.Context, opts model.ListOptions) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	CreateNotification(ctx context.Context, n model.Notification) (*model.Notification, error)
	DeleteNotification(ctx context.Context, id string) error
}

// StatusSource is the contract the offline layer needs from the
// connection monitor.
type StatusSource interface {
	Online() bool
	Subscribe(fn connectivity.Listener) func()
}

var _ Core = (*service.Service)(nil)
var _ StatusSource = (*connectivity.Monitor)(nil)

// Service wraps the base notification service with cache reads, queued
// mutations, and connectivity-triggered replay. When constructed with
// a durable store, the pending queue and the last snapshot survive
// restarts.
type Service struct {
	base    Core
	cache   *cache.Cache
	status  StatusSource
	driver  *retry.Driver
	durable store.Store // optional
	ttl     time.Duration
	log     *logrus.Entry

	unsubscribe func()

	syncCh chan struct{} // single-flight replay guard
}

// NewService builds the offline composition. durable may be nil, in
// which case queue and cache are in-memory only. The monitor
// subscription triggers a queue replay on every transition to online.
func NewService(
	base Core,
	c *cache.Cache,
	status StatusSource,
	driver *retry.Driver,
	durable store.Store,
	ttl time.Duration,
) *Service {
	if driver == nil {
		driver = retry.NewDriver()
	}
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	s := &Service{
		base:    base,
		cache:   c,
		status:  status,
		driver:  driver,
		durable: durable,
		ttl:     ttl,
		log:     logrus.WithField("component", "offline-service"),
		syncCh:  make(chan struct{}, 1),
	}

	s.restoreDurableState()

	s.unsubscribe = status.Subscribe(func(st connectivity.Status) {
		if st == connectivity.StatusOnline {
			go func() {
				if err := s.SyncPendingActions(context.Background()); err != nil {
					s.log.WithError(err).Warn("pending action replay failed")
				}
			}()
		}
	})

	return s
}

// Close detaches the monitor subscription.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// restoreDurableState reloads the pending queue and the last snapshot
// from the durable store on startup.
func (s *Service) restoreDurableState() {
	if s.durable == nil {
		return
	}
	ctx := context.Background()

	if actions, err := s.durable.ListPendingActions(ctx); err != nil {
		s.log.WithError(err).Warn("loading pending actions failed")
	} else {
		for _, a := range actions {
			s.cache.AddPendingAction(a)
		}
	}

	if snapshot, err := s.durable.GetSnapshot(ctx); err != nil {
		s.log.WithError(err).Warn("loading notification snapshot failed")
	} else if len(snapshot) > 0 {
		s.cache.Set(cacheKey, snapshot, s.ttl)
	}
}

// FetchNotifications reads from cache while offline and delegates to
// the base service through the retry driver otherwise. A network
// failure despite believing we are online still falls back to cache
// before propagating.
func (s *Service) FetchNotifications(ctx context.Context, opts model.ListOptions) ([]model.Notification, error) {
	if !s.status.Online() {
		if cached := s.cache.Get(cacheKey); cached != nil {
			return cached, nil
		}
	}

	var result []model.Notification
	err := s.driver.Do(ctx, "offline:fetch", func(ctx context.Context) error {
		list, fetchErr := s.base.FetchNotifications(ctx, opts)
		if fetchErr != nil {
			return fetchErr
		}
		result = list
		return nil
	})
	if err != nil {
		if cached := s.cache.Get(cacheKey); cached != nil {
			s.log.WithError(err).Debug("fetch failed, serving cached notifications")
			return cached, nil
		}
		return nil, err
	}

	s.cache.Set(cacheKey, result, s.ttl)
	s.persistSnapshot(ctx, result)
	return result, nil
}

// MarkAsRead applies the optimistic cache mutation unconditionally.
// Offline, the action queues without touching the network. Online, a
// confirmed failure rolls the cache back, except that a
// connectivity-shaped failure queues instead of propagating.
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	priorRead := s.cachedReadState(id)

	s.cache.UpdateNotification(cacheKey, id, func(n *model.Notification) {
		n.Read = true
	})

	if !s.status.Online() {
		s.enqueue(ctx, model.NewPendingAction(model.ActionMarkRead, id, nil))
		return nil
	}

	if err := s.base.MarkAsRead(ctx, id); err != nil {
		if errs.IsConnectivity(err) {
			s.enqueue(ctx, model.NewPendingAction(model.ActionMarkRead, id, nil))
			return nil
		}
		s.cache.UpdateNotification(cacheKey, id, func(n *model.Notification) {
			n.Read = priorRead
		})
		return errs.Classify(err)
	}
	return nil
}

// MarkAllAsRead follows the same queue-when-offline rule as MarkAsRead.
func (s *Service) MarkAllAsRead(ctx context.Context) error {
	snapshot := s.cache.Get(cacheKey)

	if cached := s.cache.Get(cacheKey); cached != nil {
		for i := range cached {
			cached[i].Read = true
		}
		s.cache.Set(cacheKey, cached, s.ttl)
	}

	if !s.status.Online() {
		s.enqueue(ctx, model.NewPendingAction(model.ActionMarkAllRead, "", nil))
		return nil
	}

	if err := s.base.MarkAllAsRead(ctx); err != nil {
		if errs.IsConnectivity(err) {
			s.enqueue(ctx, model.NewPendingAction(model.ActionMarkAllRead, "", nil))
			return nil
		}
		if snapshot != nil {
			s.cache.Set(cacheKey, snapshot, s.ttl)
		}
		return errs.Classify(err)
	}
	return nil
}

// CreateNotification submits a notification, queuing it with a
// client-generated id while offline.
func (s *Service) CreateNotification(ctx context.Context, n model.Notification) (*model.Notification, error) {
	n.Normalize()
	if err := n.Validate(); err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err.Error(), false, err)
	}
	if n.ID == "" {
		n.ID = model.NewID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	if !s.status.Online() {
		s.enqueue(ctx, model.NewPendingAction(model.ActionCreate, "", &n))
		return &n, nil
	}

	created, err := s.base.CreateNotification(ctx, n)
	if err != nil {
		if errs.IsConnectivity(err) {
			s.enqueue(ctx, model.NewPendingAction(model.ActionCreate, "", &n))
			return &n, nil
		}
		return nil, errs.Classify(err)
	}
	return created, nil
}

// DeleteNotification removes the record from the cache immediately and
// queues or confirms the backend deletion.
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	snapshot := s.cache.Get(cacheKey)

	if snapshot != nil {
		remaining := make([]model.Notification, 0, len(snapshot))
		for _, n := range snapshot {
			if n.ID != id {
				remaining = append(remaining, n)
			}
		}
		s.cache.Set(cacheKey, remaining, s.ttl)
	}

	if !s.status.Online() {
		s.enqueue(ctx, model.NewPendingAction(model.ActionDelete, id, nil))
		return nil
	}

	if err := s.base.DeleteNotification(ctx, id); err != nil {
		if errs.IsConnectivity(err) {
			s.enqueue(ctx, model.NewPendingAction(model.ActionDelete, id, nil))
			return nil
		}
		if snapshot != nil {
			s.cache.Set(cacheKey, snapshot, s.ttl)
		}
		return errs.Classify(err)
	}
	return nil
}

// PendingActions exposes a snapshot of the queue, oldest first.
func (s *Service) PendingActions() []model.PendingAction {
	return s.cache.PendingActions()
}

// SyncPendingActions replays the queue strictly in insertion order.
// A single-flight guard prevents concurrent replays. Each successful
// action is removed; a failing action stays queued for the next
// opportunity, since replay runs unattended in the background.
func (s *Service) SyncPendingActions(ctx context.Context) error {
	select {
	case s.syncCh <- struct{}{}:
	default:
		return nil // replay already in flight
	}
	defer func() { <-s.syncCh }()

	actions := s.cache.PendingActions()
	if len(actions) == 0 {
		return nil
	}

	s.log.WithField("count", len(actions)).Info("replaying pending actions")

	for _, a := range actions {
		if err := s.applyAction(ctx, a); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"action": a.Type, "id": a.ID,
			}).Warn("pending action failed, keeping queued")
			continue
		}
		s.cache.RemovePendingAction(a.ID)
		if s.durable != nil {
			if err := s.durable.DeletePendingAction(ctx, a.ID); err != nil {
				s.log.WithError(err).Warn("removing durable pending action failed")
			}
		}
	}
	return nil
}

func (s *Service) applyAction(ctx context.Context, a model.PendingAction) error {
	switch a.Type {
	case model.ActionMarkRead:
		return s.base.MarkAsRead(ctx, a.Data)
	case model.ActionMarkAllRead:
		return s.base.MarkAllAsRead(ctx)
	case model.ActionCreate:
		if a.Notification == nil {
			return nil // malformed entry, drop silently
		}
		_, err := s.base.CreateNotification(ctx, *a.Notification)
		return err
	case model.ActionDelete:
		return s.base.DeleteNotification(ctx, a.Data)
	}
	return nil
}

// enqueue appends a pending action and mirrors it to the durable
// store when one is configured.
func (s *Service) enqueue(ctx context.Context, a model.PendingAction) {
	s.cache.AddPendingAction(a)
	if s.durable != nil {
		if err := s.durable.SavePendingAction(ctx, a); err != nil {
			s.log.WithError(err).Warn("persisting pending action failed")
		}
	}
}

func (s *Service) persistSnapshot(ctx context.Context, notifications []model.Notification) {
	if s.durable == nil {
		return
	}
	if err := s.durable.ReplaceSnapshot(ctx, notifications); err != nil {
		s.log.WithError(err).Warn("persisting notification snapshot failed")
	}
}

// cachedReadState returns the read flag currently cached for id, false
// when the id is not cached.
func (s *Service) cachedReadState(id string) bool {
	for _, n := range s.cache.Get(cacheKey) {
		if n.ID == id {
			return n.Read
		}
	}
	return false
}
