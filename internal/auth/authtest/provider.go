// Package authtest provides an in-memory auth.Provider for tests.
package authtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rightvendors/portfolyze/internal/auth"
)

// DefaultCode is the code the fake accepts unless SetCode overrides it.
const DefaultCode = "123456"

type widget struct {
	containerID string
	opts        auth.WidgetOptions
	disposed    bool
}

// DisplayNameCall records one UpdateDisplayName call.
type DisplayNameCall struct {
	UID  string
	Name string
}

// Provider is a scriptable fake. It behaves like the real backend: tokens are single use, a new
// code request for a phone supersedes older handles, and a successful confirmation signs the user in.
type Provider struct {
	mu sync.Mutex

	code     string
	tokenTTL time.Duration
	now      func() time.Time

	createErr  error
	renderErr  error
	requestErr error
	confirmErr error
	updateErr  error
	signOutErr error

	gate    chan struct{}
	started chan struct{}

	seq        int
	widgets    map[auth.WidgetRef]*widget
	tokens     map[string]auth.WidgetRef
	handles    map[auth.ConfirmationHandle]string
	latest     map[string]auth.ConfirmationHandle
	identities map[string]auth.ProviderIdentity
	current    *auth.ProviderIdentity
	subs       map[int]func(*auth.ProviderIdentity)

	creates, renders, disposes, requests, confirms, subscribes int
	requestedPhones                                           []string
	displayNames                                              []DisplayNameCall
}

// NewProvider returns a fake that accepts DefaultCode.
func NewProvider() *Provider {
	return &Provider{
		code:       DefaultCode,
		tokenTTL:   2 * time.Minute,
		now:        time.Now,
		widgets:    make(map[auth.WidgetRef]*widget),
		tokens:     make(map[string]auth.WidgetRef),
		handles:    make(map[auth.ConfirmationHandle]string),
		latest:     make(map[string]auth.ConfirmationHandle),
		identities: make(map[string]auth.ProviderIdentity),
		subs:       make(map[int]func(*auth.ProviderIdentity)),
	}
}

// ProviderError builds the error the fake returns for a provider code.
func ProviderError(code string) error {
	return &auth.ProviderError{Code: code, Message: "fake: " + code}
}

// SetCode sets the code ConfirmVerificationCode accepts.
func (p *Provider) SetCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code = code
}

// SetClock overrides the clock used for token expiry.
func (p *Provider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// SetTokenTTL sets the lifetime of rendered tokens.
func (p *Provider) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = d
}

// FailCreate makes CreateChallengeWidget return err until reset with nil.
func (p *Provider) FailCreate(err error) { p.set(&p.createErr, err) }

// FailRender makes RenderWidget return err until reset with nil.
func (p *Provider) FailRender(err error) { p.set(&p.renderErr, err) }

// FailRequest makes RequestVerificationCode return err until reset with nil.
func (p *Provider) FailRequest(err error) { p.set(&p.requestErr, err) }

// FailConfirm makes ConfirmVerificationCode return err until reset with nil.
func (p *Provider) FailConfirm(err error) { p.set(&p.confirmErr, err) }

// FailUpdate makes UpdateDisplayName return err until reset with nil.
func (p *Provider) FailUpdate(err error) { p.set(&p.updateErr, err) }

// FailSignOut makes SignOut return err until reset with nil.
func (p *Provider) FailSignOut(err error) { p.set(&p.signOutErr, err) }

func (p *Provider) set(dst *error, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*dst = err
}

// HoldRequests blocks RequestVerificationCode until release is called. started receives once per
// request that reaches the gate.
func (p *Provider) HoldRequests() (started <-chan struct{}, release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	gate := make(chan struct{})
	p.gate = gate
	p.started = make(chan struct{}, 16)
	var once sync.Once
	return p.started, func() {
		once.Do(func() {
			p.mu.Lock()
			if p.gate == gate {
				p.gate = nil
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

func (p *Provider) CreateChallengeWidget(_ context.Context, containerID string, opts auth.WidgetOptions) (auth.WidgetRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creates++
	if p.createErr != nil {
		return "", p.createErr
	}
	p.seq++
	ref := auth.WidgetRef(fmt.Sprintf("widget-%d", p.seq))
	p.widgets[ref] = &widget{containerID: containerID, opts: opts}
	return ref, nil
}

func (p *Provider) RenderWidget(_ context.Context, ref auth.WidgetRef) (auth.WidgetToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders++
	if p.renderErr != nil {
		return auth.WidgetToken{}, p.renderErr
	}
	w, ok := p.widgets[ref]
	if !ok || w.disposed {
		return auth.WidgetToken{}, ProviderError(auth.CodeCaptchaCheckFailed)
	}
	p.seq++
	tok := auth.WidgetToken{
		Value:     fmt.Sprintf("proof-%d", p.seq),
		ExpiresAt: p.now().Add(p.tokenTTL),
	}
	p.tokens[tok.Value] = ref
	return tok, nil
}

func (p *Provider) DisposeWidget(_ context.Context, ref auth.WidgetRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposes++
	if w, ok := p.widgets[ref]; ok {
		w.disposed = true
	}
	return nil
}

// ExpireWidget fires the widget's expiry callback, as the real widget does when its proof times out.
func (p *Provider) ExpireWidget(ref auth.WidgetRef) {
	p.mu.Lock()
	w, ok := p.widgets[ref]
	p.mu.Unlock()
	if ok && w.opts.OnExpired != nil {
		w.opts.OnExpired()
	}
}

func (p *Provider) RequestVerificationCode(_ context.Context, formattedPhone string, token auth.WidgetToken) (auth.ConfirmationHandle, error) {
	p.mu.Lock()
	p.requests++
	p.requestedPhones = append(p.requestedPhones, formattedPhone)
	gate, started := p.gate, p.started
	p.mu.Unlock()

	if gate != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requestErr != nil {
		return "", p.requestErr
	}
	ref, ok := p.tokens[token.Value]
	if !ok || !p.now().Before(token.ExpiresAt) {
		return "", ProviderError(auth.CodeCaptchaCheckFailed)
	}
	delete(p.tokens, token.Value)
	if w := p.widgets[ref]; w == nil || w.disposed {
		return "", ProviderError(auth.CodeCaptchaCheckFailed)
	}
	if prev, ok := p.latest[formattedPhone]; ok {
		delete(p.handles, prev)
	}
	p.seq++
	h := auth.ConfirmationHandle(fmt.Sprintf("handle-%d", p.seq))
	p.handles[h] = formattedPhone
	p.latest[formattedPhone] = h
	return h, nil
}

func (p *Provider) ConfirmVerificationCode(_ context.Context, handle auth.ConfirmationHandle, code string) (auth.ProviderIdentity, error) {
	p.mu.Lock()
	p.confirms++
	if p.confirmErr != nil {
		err := p.confirmErr
		p.mu.Unlock()
		return auth.ProviderIdentity{}, err
	}
	phone, ok := p.handles[handle]
	if !ok {
		p.mu.Unlock()
		return auth.ProviderIdentity{}, ProviderError(auth.CodeCodeExpired)
	}
	if code != p.code {
		p.mu.Unlock()
		return auth.ProviderIdentity{}, ProviderError(auth.CodeInvalidVerificationCode)
	}
	delete(p.handles, handle)
	delete(p.latest, phone)
	id, ok := p.identities[phone]
	if !ok {
		id = auth.ProviderIdentity{UID: "uid-" + phone, PhoneNumber: phone}
		p.identities[phone] = id
	}
	p.mu.Unlock()

	p.notify(&id)
	return id, nil
}

func (p *Provider) UpdateDisplayName(_ context.Context, identity auth.ProviderIdentity, name string) error {
	p.mu.Lock()
	p.displayNames = append(p.displayNames, DisplayNameCall{UID: identity.UID, Name: name})
	if p.updateErr != nil {
		err := p.updateErr
		p.mu.Unlock()
		return err
	}
	id := p.identities[identity.PhoneNumber]
	if id.UID == "" {
		id = identity
	}
	id.DisplayName = name
	p.identities[identity.PhoneNumber] = id
	signedIn := p.current != nil && p.current.UID == id.UID
	p.mu.Unlock()

	if signedIn {
		p.notify(&id)
	}
	return nil
}

// SubscribeToSessionChanges calls cb with the current identity before returning, then on every change.
func (p *Provider) SubscribeToSessionChanges(cb func(*auth.ProviderIdentity)) func() {
	p.mu.Lock()
	p.subscribes++
	p.seq++
	key := p.seq
	p.subs[key] = cb
	cur := cloneIdentity(p.current)
	p.mu.Unlock()

	cb(cur)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, key)
	}
}

func (p *Provider) SignOut(context.Context) error {
	p.mu.Lock()
	if p.signOutErr != nil {
		err := p.signOutErr
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()
	p.notify(nil)
	return nil
}

func (p *Provider) notify(id *auth.ProviderIdentity) {
	p.mu.Lock()
	p.current = cloneIdentity(id)
	cbs := make([]func(*auth.ProviderIdentity), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(cloneIdentity(id))
	}
}

func cloneIdentity(id *auth.ProviderIdentity) *auth.ProviderIdentity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Stats is a snapshot of call counters.
type Stats struct {
	Creates, Renders, Disposes, Requests, Confirms, Subscribes int
}

// Stats returns the call counters.
func (p *Provider) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Creates:    p.creates,
		Renders:    p.renders,
		Disposes:   p.disposes,
		Requests:   p.requests,
		Confirms:   p.confirms,
		Subscribes: p.subscribes,
	}
}

// RequestedPhones returns the formatted numbers passed to RequestVerificationCode, in order.
func (p *Provider) RequestedPhones() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requestedPhones...)
}

// DisplayNameCalls returns every UpdateDisplayName call, in order.
func (p *Provider) DisplayNameCalls() []DisplayNameCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DisplayNameCall(nil), p.displayNames...)
}

// LiveWidgets returns how many widgets bound to containerID have not been disposed.
func (p *Provider) LiveWidgets(containerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.widgets {
		if w.containerID == containerID && !w.disposed {
			n++
		}
	}
	return n
}

// Subscribers returns the number of active session subscriptions.
func (p *Provider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

var _ auth.Provider = (*Provider)(nil)
