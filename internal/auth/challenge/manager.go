// Package challenge owns the lifecycle of bot-challenge widgets: create once per container, render,
// expire and dispose. At most one non-disposed widget exists per container id.
package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/autherr"
)

// Status is the lifecycle state of a widget.
type Status int

const (
	Uninitialized Status = iota
	Rendering
	Ready
	Expired
	Disposed
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Rendering:
		return "rendering"
	case Ready:
		return "ready"
	case Expired:
		return "expired"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

var (
	// ErrDisposed is returned when a widget was disposed while it was being acquired or used.
	ErrDisposed = errors.New("challenge: widget disposed")
	// ErrNoProof is returned when a handle has no unspent, unexpired proof.
	ErrNoProof = errors.New("challenge: no valid proof")
	// ErrEmptyContainer is returned for an empty container id.
	ErrEmptyContainer = errors.New("challenge: container id is required")
)

const disposeTimeout = 5 * time.Second

// Handle references the live widget of one container. Its state is guarded by the manager.
type Handle struct {
	mgr         *Manager
	containerID string
	ref         auth.WidgetRef
	status      Status
	proof       auth.WidgetToken
	// settled is closed when the current create/render step finishes.
	settled chan struct{}
}

// ContainerID returns the container the widget is bound to.
func (h *Handle) ContainerID() string { return h.containerID }

// Ref returns the provider reference, empty until creation completes.
func (h *Handle) Ref() auth.WidgetRef {
	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()
	return h.ref
}

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()
	return h.status
}

// TakeProof returns the cached challenge proof and clears it; proofs are single use.
// The widget stays Ready so the next Acquire re-renders the same instance.
func (h *Handle) TakeProof() (auth.WidgetToken, error) {
	m := h.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.status == Disposed {
		return auth.WidgetToken{}, autherr.New(autherr.ChallengeUnavailable, ErrDisposed)
	}
	if h.status != Ready || h.proof.Expired(m.now()) {
		return auth.WidgetToken{}, autherr.New(autherr.ChallengeUnavailable, ErrNoProof)
	}
	tok := h.proof
	h.proof = auth.WidgetToken{}
	return tok, nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithWidgetSize sets the size requested for new widgets. Defaults to invisible.
func WithWidgetSize(s auth.WidgetSize) Option {
	return func(m *Manager) { m.size = s }
}

// WithClock overrides the clock used for proof expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager creates, renders, expires and disposes challenge widgets through the provider.
type Manager struct {
	provider auth.Provider
	logger   *zap.Logger
	size     auth.WidgetSize
	now      func() time.Time

	mu      sync.Mutex
	widgets map[string]*Handle
}

// NewManager returns a Manager backed by provider.
func NewManager(provider auth.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		logger:   zap.NewNop(),
		size:     auth.WidgetSizeInvisible,
		now:      time.Now,
		widgets:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire returns the container's widget with a fresh proof, creating it on first use.
// It does not return until the widget is rendered. A Ready widget is reused; an Expired one is
// disposed and recreated. Failures are reported as autherr.ChallengeUnavailable.
func (m *Manager) Acquire(ctx context.Context, containerID string) (*Handle, error) {
	if containerID == "" {
		return nil, autherr.New(autherr.ChallengeUnavailable, ErrEmptyContainer)
	}
	for {
		m.mu.Lock()
		h := m.widgets[containerID]
		switch {
		case h == nil:
			h = &Handle{mgr: m, containerID: containerID, status: Uninitialized, settled: make(chan struct{})}
			m.widgets[containerID] = h
			m.mu.Unlock()
			return m.create(ctx, h)

		case h.status == Uninitialized || h.status == Rendering:
			settled := h.settled
			m.mu.Unlock()
			select {
			case <-settled:
				continue
			case <-ctx.Done():
				return nil, autherr.New(autherr.ChallengeUnavailable, ctx.Err())
			}

		case h.status == Ready:
			if !h.proof.Expired(m.now()) {
				m.mu.Unlock()
				return h, nil
			}
			h.status = Rendering
			h.settled = make(chan struct{})
			m.mu.Unlock()
			return m.render(ctx, h)

		default: // Expired
			delete(m.widgets, containerID)
			h.status = Disposed
			ref := h.ref
			m.mu.Unlock()
			m.disposeRef(ref)
		}
	}
}

func (m *Manager) create(ctx context.Context, h *Handle) (*Handle, error) {
	ref, err := m.provider.CreateChallengeWidget(ctx, h.containerID, auth.WidgetOptions{
		Size:      m.size,
		OnExpired: func() { m.expire(h) },
	})
	m.mu.Lock()
	if err != nil {
		m.forget(h)
		m.mu.Unlock()
		m.logger.Warn("challenge widget create failed", zap.String("container_id", h.containerID), zap.Error(err))
		return nil, autherr.New(autherr.ChallengeUnavailable, err)
	}
	if h.status == Disposed {
		close(h.settled)
		m.mu.Unlock()
		m.disposeRef(ref)
		return nil, autherr.New(autherr.ChallengeUnavailable, ErrDisposed)
	}
	h.ref = ref
	h.status = Rendering
	m.mu.Unlock()
	return m.render(ctx, h)
}

// render must be entered with h.status == Rendering and h.settled open.
func (m *Manager) render(ctx context.Context, h *Handle) (*Handle, error) {
	m.mu.Lock()
	ref := h.ref
	m.mu.Unlock()

	tok, err := m.provider.RenderWidget(ctx, ref)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer close(h.settled)
	if h.status == Disposed {
		return nil, autherr.New(autherr.ChallengeUnavailable, ErrDisposed)
	}
	if err != nil {
		h.status = Expired
		h.proof = auth.WidgetToken{}
		m.logger.Warn("challenge widget render failed", zap.String("container_id", h.containerID), zap.Error(err))
		return nil, autherr.New(autherr.ChallengeUnavailable, err)
	}
	h.proof = tok
	h.status = Ready
	return h, nil
}

// forget drops h from the registry after a failed create. Caller holds m.mu.
func (m *Manager) forget(h *Handle) {
	if m.widgets[h.containerID] == h {
		delete(m.widgets, h.containerID)
	}
	if h.status != Disposed {
		h.status = Disposed
	}
	close(h.settled)
}

// expire is the provider's expiry notification: Ready → Expired.
func (m *Manager) expire(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.status != Ready {
		return
	}
	h.status = Expired
	h.proof = auth.WidgetToken{}
	m.logger.Debug("challenge widget expired", zap.String("container_id", h.containerID))
}

// Invalidate marks the widget Expired and drops its cached proof, so the next Acquire recreates it.
func (m *Manager) Invalidate(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.status == Disposed {
		return
	}
	h.proof = auth.WidgetToken{}
	if h.status == Ready {
		h.status = Expired
	}
}

// Dispose tears the widget down and frees its container. Calling it more than once is a no-op.
func (m *Manager) Dispose(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	if h.status == Disposed {
		m.mu.Unlock()
		return
	}
	h.status = Disposed
	h.proof = auth.WidgetToken{}
	if m.widgets[h.containerID] == h {
		delete(m.widgets, h.containerID)
	}
	ref := h.ref
	m.mu.Unlock()
	// A widget still being created has no ref yet; create releases it once the provider returns.
	m.disposeRef(ref)
}

// DisposeContainer disposes whatever widget is bound to containerID, if any.
func (m *Manager) DisposeContainer(containerID string) {
	m.mu.Lock()
	h := m.widgets[containerID]
	m.mu.Unlock()
	m.Dispose(h)
}

// Lookup returns the container's non-disposed widget, if any.
func (m *Manager) Lookup(containerID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.widgets[containerID]
	return h, ok
}

// Live returns the number of non-disposed widgets.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.widgets)
}

// Close disposes every widget. Used at process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	hs := make([]*Handle, 0, len(m.widgets))
	for _, h := range m.widgets {
		hs = append(hs, h)
	}
	m.mu.Unlock()
	for _, h := range hs {
		m.Dispose(h)
	}
}

func (m *Manager) disposeRef(ref auth.WidgetRef) {
	if ref == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()
	if err := m.provider.DisposeWidget(ctx, ref); err != nil {
		m.logger.Warn("challenge widget dispose failed", zap.String("widget_ref", string(ref)), zap.Error(err))
	}
}
