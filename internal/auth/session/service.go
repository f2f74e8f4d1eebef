// Package session publishes the signed-in identity for the whole process. It subscribes to the
// provider once, on Start, and unsubscribes once, on Shutdown; auth flows come and go without
// touching the subscription.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth"
)

// Source is the part of auth.Provider the service depends on.
type Source interface {
	SubscribeToSessionChanges(cb func(*auth.ProviderIdentity)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Service holds the current identity and the initial loading flag.
type Service struct {
	source Source
	logger *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once

	mu          sync.RWMutex
	identity    *auth.UserIdentity
	loading     bool
	stopped     bool
	unsubscribe func()
	watchers    map[int]func(*auth.UserIdentity)
	nextWatcher int
	ready       chan struct{}
}

// NewService returns a Service in the loading state. Call Start to subscribe.
func NewService(source Source, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		logger:   logger,
		loading:  true,
		watchers: make(map[int]func(*auth.UserIdentity)),
		ready:    make(chan struct{}),
	}
}

// Start subscribes to session changes. Only the first call has any effect.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.mu.RLock()
		stopped := s.stopped
		s.mu.RUnlock()
		if stopped {
			return
		}
		unsub := s.source.SubscribeToSessionChanges(s.onChange)
		s.mu.Lock()
		s.unsubscribe = unsub
		s.mu.Unlock()
		s.logger.Debug("session subscription started")
	})
}

// Shutdown drops the subscription. Only the first call has any effect; later notifications are ignored.
func (s *Service) Shutdown() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		unsub := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		s.logger.Debug("session subscription stopped")
	})
}

func (s *Service) onChange(p *auth.ProviderIdentity) {
	var next *auth.UserIdentity
	if p != nil {
		id := auth.IdentityFromProvider(*p)
		next = &id
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.identity = next
	if s.loading {
		s.loading = false
		close(s.ready)
	}
	watchers := make([]func(*auth.UserIdentity), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	if next != nil {
		s.logger.Info("session signed in", zap.String("uid", next.UID))
	} else {
		s.logger.Info("session signed out")
	}
	for _, w := range watchers {
		w(copyIdentity(next))
	}
}

// Current returns the signed-in identity, if any.
func (s *Service) Current() (auth.UserIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return auth.UserIdentity{}, false
	}
	return *s.identity, true
}

// Loading reports whether the first notification is still outstanding.
func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// WaitReady blocks until the first notification arrives or ctx is done.
func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch calls fn on every later identity change until the returned cancel func is called.
func (s *Service) Watch(fn func(*auth.UserIdentity)) (cancel func()) {
	s.mu.Lock()
	key := s.nextWatcher
	s.nextWatcher++
	s.watchers[key] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, key)
	}
}

// SignOut asks the provider to end the session; the published identity clears when the provider
// notifies.
func (s *Service) SignOut(ctx context.Context) error {
	return s.source.SignOut(ctx)
}

func copyIdentity(id *auth.UserIdentity) *auth.UserIdentity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
