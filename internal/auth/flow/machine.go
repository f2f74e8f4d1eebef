// Package flow is the phone sign-in state machine. It owns the session data of one open flow,
// drives the challenge widget and verification client, and rejects re-entrant requests.
package flow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/autherr"
	"github.com/rightvendors/portfolyze/internal/auth/challenge"
	"github.com/rightvendors/portfolyze/internal/auth/verification"
	"github.com/rightvendors/portfolyze/internal/phone"
)

// Phase is the current step of the flow.
type Phase int

const (
	Idle Phase = iota
	CollectingIdentity
	RequestingCode
	CodeSent
	Verifying
	Authenticated
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case CollectingIdentity:
		return "collecting_identity"
	case RequestingCode:
		return "requesting_code"
	case CodeSent:
		return "code_sent"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Variant selects sign-in or sign-up. Sign-up additionally collects and enrolls a display name.
type Variant int

const (
	SignIn Variant = iota
	SignUp
)

func (v Variant) String() string {
	if v == SignUp {
		return "signup"
	}
	return "signin"
}

var (
	// ErrBusy is returned when a code or verify request is already in flight.
	ErrBusy = errors.New("flow: request already in flight")
	// ErrInvalidTransition is returned when an action is not allowed in the current phase.
	ErrInvalidTransition = errors.New("flow: action not allowed in current phase")
	// ErrDisplayNameRequired is returned by SubmitIdentity in a sign-up flow without a name.
	ErrDisplayNameRequired = errors.New("flow: display name is required")
	// ErrClosed is returned when the flow was closed while the request was in flight; its result is dropped.
	ErrClosed = errors.New("flow: closed while request was in flight")
)

// Widgets is the part of challenge.Manager the machine uses.
type Widgets interface {
	Acquire(ctx context.Context, containerID string) (*challenge.Handle, error)
	Invalidate(h *challenge.Handle)
	DisposeContainer(containerID string)
}

// Verifier is the part of verification.Client the machine uses.
type Verifier interface {
	RequestCode(ctx context.Context, national string, proof verification.ProofSource) (auth.ConfirmationHandle, error)
	ConfirmCode(ctx context.Context, handle auth.ConfirmationHandle, code string) (auth.UserIdentity, error)
	EnrollDisplayName(ctx context.Context, identity auth.UserIdentity, name string) error
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Phase        Phase
	Variant      Variant
	PhoneNumber  string
	DisplayName  string
	Code         string
	HasHandle    bool
	LastError    *autherr.Error
	AttemptCount int
	Identity     *auth.UserIdentity
}

// Transition is delivered to observers for every phase change, in order.
type Transition struct {
	From Phase
	To   Phase
	Err  *autherr.Error
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver registers fn for phase changes. fn may read Snapshot but must not call other
// Machine methods.
func WithObserver(fn func(Transition)) Option {
	return func(m *Machine) { m.observers = append(m.observers, fn) }
}

type state struct {
	phase    Phase
	variant  Variant
	phone    string
	name     string
	code     string
	handle   auth.ConfirmationHandle
	lastErr  *autherr.Error
	attempts int
	identity *auth.UserIdentity
}

// Machine is one auth flow bound to one challenge container.
type Machine struct {
	containerID string
	widgets     Widgets
	verifier    Verifier
	logger      *zap.Logger
	observers   []func(Transition)

	mu  sync.Mutex
	st  state
	gen uint64
	// busy is set while a code or verify request is in flight.
	busy bool

	// notifyMu keeps observer delivery in transition order.
	notifyMu sync.Mutex
}

// New returns an Idle machine that owns containerID's widget while open.
func New(containerID string, widgets Widgets, verifier Verifier, opts ...Option) *Machine {
	m := &Machine{
		containerID: containerID,
		widgets:     widgets,
		verifier:    verifier,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current session state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Phase:        m.st.phase,
		Variant:      m.st.variant,
		PhoneNumber:  m.st.phone,
		DisplayName:  m.st.name,
		Code:         m.st.code,
		HasHandle:    m.st.handle != "",
		LastError:    m.st.lastErr,
		AttemptCount: m.st.attempts,
	}
	if m.st.identity != nil {
		id := *m.st.identity
		s.Identity = &id
	}
	return s
}

// Open starts a flow of variant v: Idle → CollectingIdentity.
func (m *Machine) Open(v Variant) error {
	m.mu.Lock()
	if m.st.phase != Idle {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.st = state{variant: v}
	trs := []Transition{m.move(CollectingIdentity, nil)}
	m.release(trs)
	m.logger.Debug("auth flow opened", zap.Stringer("variant", v), zap.String("container_id", m.containerID))
	return nil
}

// SubmitIdentity validates the phone number (and the display name for sign-up) and requests a
// code. A malformed number is rejected without contacting the provider.
func (m *Machine) SubmitIdentity(ctx context.Context, national, displayName string) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.st.phase != CollectingIdentity {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	if err := phone.ValidateNational(national); err != nil {
		ce := autherr.New(autherr.InvalidPhoneFormat, err)
		m.st.lastErr = ce
		m.mu.Unlock()
		return ce
	}
	name := strings.TrimSpace(displayName)
	if m.st.variant == SignUp && name == "" {
		m.mu.Unlock()
		return ErrDisplayNameRequired
	}
	m.st.phone = national
	m.st.name = name
	trs := m.beginRequest()
	gen := m.gen
	m.release(trs)
	return m.requestCode(ctx, gen, national)
}

// Resend invalidates the current handle and requests a new code for the same number.
func (m *Machine) Resend(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.st.phase != CodeSent {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.st.handle = ""
	m.st.code = ""
	national := m.st.phone
	trs := m.beginRequest()
	gen := m.gen
	m.release(trs)
	return m.requestCode(ctx, gen, national)
}

// ChangeNumber drops the current handle and returns to identity entry, keeping the typed values.
func (m *Machine) ChangeNumber() error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.st.phase != CodeSent {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.st.handle = ""
	m.st.code = ""
	m.st.lastErr = nil
	trs := []Transition{m.move(CollectingIdentity, nil)}
	m.release(trs)
	return nil
}

// SubmitCode validates the code and confirms it with the provider. On success the flow is
// Authenticated and, for sign-up, the display name is enrolled best-effort.
func (m *Machine) SubmitCode(ctx context.Context, code string) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.st.phase != CodeSent {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	if err := phone.ValidateCode(code); err != nil {
		ce := autherr.New(autherr.InvalidCode, err)
		m.st.lastErr = ce
		m.mu.Unlock()
		return ce
	}
	if m.st.handle == "" {
		ce := autherr.New(autherr.CodeExpired, nil)
		m.st.lastErr = ce
		m.mu.Unlock()
		return ce
	}
	handle := m.st.handle
	m.st.code = code
	m.st.lastErr = nil
	m.busy = true
	gen := m.gen
	trs := []Transition{m.move(Verifying, nil)}
	m.release(trs)

	id, err := m.verifier.ConfirmCode(ctx, handle, code)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrClosed
	}
	m.busy = false
	if err != nil {
		ce := autherr.Classify(err)
		m.st.code = ""
		if ce.Kind == autherr.CodeExpired {
			m.st.handle = ""
		}
		trs = m.fail(ce, CodeSent)
		m.release(trs)
		return ce
	}
	m.st.handle = ""
	m.st.code = ""
	m.st.identity = &id
	variant, name := m.st.variant, m.st.name
	trs = []Transition{m.move(Authenticated, nil)}
	m.release(trs)
	m.logger.Info("phone sign-in succeeded", zap.String("uid", id.UID), zap.Stringer("variant", variant))

	if variant == SignUp && name != "" {
		if err := m.verifier.EnrollDisplayName(ctx, id, name); err != nil {
			m.logger.Warn("display name not enrolled", zap.String("uid", id.UID), zap.Error(err))
		}
	}
	return nil
}

// Close resets the flow to Idle and disposes its widget. A request still in flight keeps running
// but its result is discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	m.gen++
	m.busy = false
	var trs []Transition
	if m.st.phase != Idle {
		trs = append(trs, m.move(Idle, nil))
	}
	m.st = state{}
	m.release(trs)
	m.widgets.DisposeContainer(m.containerID)
}

func (m *Machine) requestCode(ctx context.Context, gen uint64, national string) error {
	h, err := m.widgets.Acquire(ctx, m.containerID)
	if err == nil {
		if m.stale(gen) {
			return ErrClosed
		}
		var handle auth.ConfirmationHandle
		handle, err = m.verifier.RequestCode(ctx, national, h)
		if err == nil {
			return m.finishRequest(gen, handle, nil)
		}
		if autherr.KindOf(err) == autherr.ChallengeUnavailable {
			m.widgets.Invalidate(h)
		}
	}
	return m.finishRequest(gen, "", err)
}

// stale reports whether the flow was closed since gen. A widget acquired for a closed flow that was
// not reopened is released right away.
func (m *Machine) stale(gen uint64) bool {
	m.mu.Lock()
	closed := gen != m.gen
	idle := m.st.phase == Idle
	m.mu.Unlock()
	if closed && idle {
		m.widgets.DisposeContainer(m.containerID)
	}
	return closed
}

func (m *Machine) finishRequest(gen uint64, handle auth.ConfirmationHandle, err error) error {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return ErrClosed
	}
	m.busy = false
	if err != nil {
		ce := autherr.Classify(err)
		trs := m.fail(ce, CollectingIdentity)
		m.release(trs)
		return ce
	}
	m.st.handle = handle
	m.st.code = ""
	trs := []Transition{m.move(CodeSent, nil)}
	m.release(trs)
	return nil
}

// beginRequest moves to RequestingCode and marks a request in flight. Caller holds m.mu.
func (m *Machine) beginRequest() []Transition {
	m.st.lastErr = nil
	m.st.attempts++
	m.busy = true
	return []Transition{m.move(RequestingCode, nil)}
}

// fail records ce and passes through Failed to the recovery phase. Caller holds m.mu.
func (m *Machine) fail(ce *autherr.Error, recoverTo Phase) []Transition {
	m.st.lastErr = ce
	m.logger.Info("auth flow step failed",
		zap.Stringer("phase", m.st.phase), zap.Stringer("kind", ce.Kind), zap.Error(ce))
	return []Transition{m.move(Failed, ce), m.move(recoverTo, ce)}
}

// move sets the phase and returns the transition. Caller holds m.mu.
func (m *Machine) move(to Phase, err *autherr.Error) Transition {
	tr := Transition{From: m.st.phase, To: to, Err: err}
	m.st.phase = to
	return tr
}

// release unlocks m.mu and delivers trs to observers in order.
func (m *Machine) release(trs []Transition) {
	if len(trs) == 0 || len(m.observers) == 0 {
		m.mu.Unlock()
		return
	}
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()
	for _, tr := range trs {
		for _, fn := range m.observers {
			fn(tr)
		}
	}
}
