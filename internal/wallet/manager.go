package wallet

import (
	"context"
	"math/big"
	"sync"

	"go.uber.org/atomic"
	"moff.io/moff-wallet/pkg/concurrent"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// Phase of the connection lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	default:
		return "idle"
	}
}

type Options struct {
	// Injected is nil when no injected wallet was detected.
	Injected Adapter
	Remote   Adapter
	Chain    *ChainCoordinator
	Balance  *BalanceService
	// Prefs defaults to in-memory preferences.
	Prefs Preferences
	// Scheduler runs event triggered reconnects. Defaults to a private Loop.
	Scheduler concurrent.Scheduler
}

// Manager owns the single wallet session and publishes State snapshots.
//
// Connect attempts are numbered; when attempts overlap the most recently
// started one decides the state and results of older ones are dropped.
//
// State changes are committed under mu. Session subscription work and watcher
// callbacks are queued at commit time and run outside mu, in commit order.
type Manager struct {
	injected  Adapter
	remote    Adapter
	chain     *ChainCoordinator
	balance   *BalanceService
	prefs     Preferences
	scheduler concurrent.Scheduler
	loop      *concurrent.Loop

	ctx    context.Context
	cancel context.CancelFunc

	attempts atomic.Int64

	mu         sync.Mutex
	phase      Phase
	state      State
	session    Session
	watchers   map[int64]func(State)
	watcherSeq int64
	pending    []func()
	draining   bool
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		injected:  opts.Injected,
		remote:    opts.Remote,
		chain:     opts.Chain,
		balance:   opts.Balance,
		prefs:     opts.Prefs,
		scheduler: opts.Scheduler,
		watchers:  make(map[int64]func(State)),
	}
	if m.prefs == nil {
		m.prefs = NewMemoryPreferences()
	}
	if m.scheduler == nil {
		m.loop = concurrent.NewLoop(0)
		m.scheduler = m.loop
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.state = m.disconnectedState()
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) InjectedAvailable() bool {
	return m.injected != nil
}

// Watch calls fn with every new State, in the order the states were
// committed. fn runs outside the manager lock and must not block: later
// callbacks and session subscriptions wait for it.
func (m *Manager) Watch(fn func(State)) (cancel func()) {
	m.mu.Lock()
	id := m.watcherSeq
	m.watcherSeq++
	m.watchers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Connect runs the connect flow for kind. A remote session that turns out to
// be dead leaves the manager idle and is not an error.
func (m *Manager) Connect(ctx context.Context, kind Kind) error {
	adapter := m.adapter(kind)
	if adapter == nil {
		if kind == KindInjected {
			return ErrInjectedUnavailable
		}
		return errors.Errorf("no adapter for %v wallet", kind)
	}
	return m.connect(ctx, adapter)
}

// Disconnect ends the current session, if any.
func (m *Manager) Disconnect(ctx context.Context) error {
	c, ok := m.State().(*Connected)
	if !ok {
		return nil
	}
	return c.Disconnect(ctx)
}

// SwitchChain asks the connected wallet to move to the target chain.
func (m *Manager) SwitchChain(ctx context.Context) error {
	c, ok := m.State().(*Connected)
	if !ok {
		return ErrNotConnected
	}
	if c.RequestSwitchToCorrectChain == nil {
		return ErrChainSwitchDisabled
	}
	return c.RequestSwitchToCorrectChain(ctx)
}

// RefreshBalance re-reads the target chain balance of the connected account.
func (m *Manager) RefreshBalance(ctx context.Context) (*big.Int, error) {
	c, ok := m.State().(*Connected)
	if !ok {
		return nil, ErrNotConnected
	}
	return c.TargetChainBalance.Refresh(ctx)
}

// Close drops the current session locally without ending it on the wallet side.
func (m *Manager) Close() {
	m.cancel()
	m.attempts.Inc()
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.phase = PhaseIdle
	m.state = m.disconnectedState()
	if session != nil {
		m.enqueue(retire(session))
	}
	m.mu.Unlock()

	m.drain()
	if m.loop != nil {
		m.loop.Stop()
	}
}

func (m *Manager) adapter(kind Kind) Adapter {
	switch kind {
	case KindInjected:
		return m.injected
	case KindRemoteSession:
		return m.remote
	}
	return nil
}

func (m *Manager) connect(ctx context.Context, adapter Adapter) error {
	id := m.attempts.Inc()
	kind := adapter.Kind()
	m.mu.Lock()
	m.phase = PhaseConnecting
	m.mu.Unlock()
	log.Debugf("wallet - connect attempt %v via %v", id, kind)

	session, err := adapter.Connect(ctx)
	if err != nil {
		return m.fail(id, kind, err)
	}
	accounts := session.Accounts()
	if len(accounts) == 0 {
		session.Close()
		return m.fail(id, kind, errors.New("no accounts"))
	}
	balance, err := m.balance.Fetch(ctx, accounts[0])
	if err != nil {
		session.Close()
		return m.fail(id, kind, err)
	}
	if !m.publish(id, session, accounts[0], balance) {
		log.Debugf("wallet - connect attempt %v superseded", id)
		session.Close()
		return nil
	}
	log.Infof("wallet - connected %v via %v on chain %v", accounts[0], kind, session.ChainID())

	if kind == KindInjected {
		if err := m.prefs.SetBool(ctx, PrefDisconnectedInjected, false); err != nil {
			log.Warnf("wallet - clear %v: %v", PrefDisconnectedInjected, err)
		}
	}
	return nil
}

func (m *Manager) fail(id int64, kind Kind, err error) error {
	if errors.Is(err, ErrNoUsableSession) {
		log.Infof("wallet - %v: %v", kind, err)
		m.reset(id, nil)
		return nil
	}
	cerr := newKindError(ErrConnection, err, "connect %v", kind)
	log.Error(errors.WithStackAndReport(cerr))
	m.reset(id, nil)
	return cerr
}

// publish installs session as the current one when attempt id is still the
// latest. The prior session is retired before the new one subscribes.
func (m *Manager) publish(id int64, session Session, account string, balance *big.Int) bool {
	m.mu.Lock()
	if id != m.attempts.Load() {
		m.mu.Unlock()
		return false
	}
	old := m.session
	m.session = session
	m.phase = PhaseActive
	m.state = m.connectedState(session, account, balance)
	if old != nil && old != session {
		m.enqueue(retire(old))
	}
	m.enqueue(func() {
		if m.isCurrent(session) {
			session.Subscribe(m.handlers(session))
		}
	})
	m.enqueueNotify()
	m.mu.Unlock()

	m.drain()
	return true
}

// reset goes back to Disconnected. With a non-nil only it applies only while
// only is the current session; otherwise only while attempt id is the latest.
func (m *Manager) reset(id int64, only Session) {
	m.mu.Lock()
	if only != nil {
		if m.session != only {
			m.mu.Unlock()
			return
		}
		// newer than any in-flight attempt
		m.attempts.Inc()
	} else if id != m.attempts.Load() {
		m.mu.Unlock()
		return
	}
	old := m.session
	m.session = nil
	m.phase = PhaseIdle
	m.state = m.disconnectedState()
	if old != nil {
		m.enqueue(retire(old))
	}
	m.enqueueNotify()
	m.mu.Unlock()

	m.drain()
}

func (m *Manager) handlers(session Session) Handlers {
	return Handlers{
		AccountsChanged: func([]string) {
			m.onChanged(session)
		},
		ChainChanged: func(int64) {
			m.onChanged(session)
		},
		Disconnect: func(err error) {
			m.scheduler.Post(func() {
				if m.isCurrent(session) {
					log.Infof("wallet - %v session ended: %v", session.Kind(), err)
				}
				m.reset(0, session)
			})
		},
	}
}

// onChanged reruns the whole connect flow on the next tick so the backend has
// settled its own fields before they are read again.
func (m *Manager) onChanged(session Session) {
	kind := session.Kind()
	if kind == KindRemoteSession {
		session.Unsubscribe()
	}
	m.scheduler.Post(func() {
		if !m.isCurrent(session) {
			return
		}
		if kind == KindInjected && m.injectedSuppressed(m.ctx) {
			return
		}
		if err := m.connect(m.ctx, m.adapter(kind)); err != nil {
			log.Debugf("wallet - reconnect after change: %v", err)
		}
	})
}

func (m *Manager) isCurrent(session Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session == session
}

func (m *Manager) injectedSuppressed(ctx context.Context) bool {
	off, err := m.prefs.GetBool(ctx, PrefDisconnectedInjected)
	if err != nil {
		log.Warnf("wallet - read %v: %v", PrefDisconnectedInjected, err)
		return false
	}
	return off
}

func (m *Manager) disconnect(ctx context.Context, session Session) error {
	if !m.isCurrent(session) {
		return nil
	}
	var err error
	switch session.Kind() {
	case KindRemoteSession:
		err = session.Disconnect(ctx)
	case KindInjected:
		err = m.prefs.SetBool(ctx, PrefDisconnectedInjected, true)
	}
	m.reset(0, session)
	if err != nil {
		return errors.Wrapf(err, "disconnect %v wallet", session.Kind())
	}
	return nil
}

func (m *Manager) refresh(ctx context.Context, session Session, account string) (*big.Int, error) {
	balance, err := m.balance.Fetch(ctx, account)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	c, ok := m.state.(*Connected)
	if !ok || m.session != session {
		m.mu.Unlock()
		return balance, nil
	}
	next := *c
	next.TargetChainBalance.Value = balance
	m.state = &next
	m.enqueueNotify()
	m.mu.Unlock()

	m.drain()
	return balance, nil
}

func (m *Manager) disconnectedState() *Disconnected {
	d := &Disconnected{
		ConnectRemoteSession: func(ctx context.Context) error {
			return m.Connect(ctx, KindRemoteSession)
		},
	}
	if m.injected != nil {
		d.ConnectInjected = func(ctx context.Context) error {
			return m.Connect(ctx, KindInjected)
		}
	}
	return d
}

func (m *Manager) connectedState(session Session, account string, balance *big.Int) *Connected {
	chainID := session.ChainID()
	c := &Connected{
		Account: account,
		Kind:    session.Kind(),
		Session: session,
		TargetChainBalance: Balance{
			Value: balance,
			Refresh: func(ctx context.Context) (*big.Int, error) {
				return m.refresh(ctx, session, account)
			},
		},
		WalletInfo:     session.WalletInfo(),
		CurrentChainID: chainID,
		Disconnect: func(ctx context.Context) error {
			return m.disconnect(ctx, session)
		},
		targetChainID: m.chain.TargetChainID(),
	}
	if session.CanSwitchChain() {
		c.RequestSwitchToCorrectChain = func(ctx context.Context) error {
			return m.chain.RequestSwitchToCorrectChain(ctx, session, chainID)
		}
	}
	return c
}

// enqueue adds work to run after the current commit. Callers hold mu.
func (m *Manager) enqueue(fn func()) {
	m.pending = append(m.pending, fn)
}

// enqueueNotify queues delivery of the just committed state to the current
// watchers. Callers hold mu.
func (m *Manager) enqueueNotify() {
	state := m.state
	watchers := make([]func(State), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.enqueue(func() {
		for _, fn := range watchers {
			fn(state)
		}
	})
}

// drain runs queued work until the queue is empty. When another goroutine is
// already draining it picks up this work, so drain returns at once.
func (m *Manager) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.pending) > 0 {
		fn := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		m.mu.Unlock()
		runQueued(fn)
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func runQueued(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("wallet - queued task panicked: %v", r)
		}
	}()
	fn()
}

func retire(session Session) func() {
	return func() {
		session.Unsubscribe()
		session.Close()
	}
}
