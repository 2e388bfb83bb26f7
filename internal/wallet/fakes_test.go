package wallet

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
	"moff.io/moff-wallet/pkg/errors"
)

const (
	testTargetChain = int64(56)
	testRPC         = "https://bsc-dataseed.binance.org/"
)

type codedError struct {
	code int
}

func (e *codedError) Error() string  { return "wallet error" }
func (e *codedError) ErrorCode() int { return e.code }

type rpcCall struct {
	method string
	params []interface{}
}

// fakeProvider is an injected wallet. A successful wallet_switchEthereumChain
// moves it to the requested chain and emits chainChanged.
type fakeProvider struct {
	mu         sync.Mutex
	accounts   []string
	selected   string
	chainID    int64
	expected   bool
	accountErr error
	switchErr  error
	addErr     error
	calls      []rpcCall
	onAccounts []func([]string)
	onChain    []func(int64)
	onGone     []func(error)
	// when gate is set OnAccountsChanged signals listening and waits for gate
	// to close
	listening chan struct{}
	gate      chan struct{}
	removed   int
}

func newFakeProvider(account string, chainID int64) *fakeProvider {
	return &fakeProvider{
		accounts: []string{account},
		selected: account,
		chainID:  chainID,
		expected: true,
	}
}

func (p *fakeProvider) Request(_ context.Context, result interface{}, method string, params ...interface{}) error {
	p.mu.Lock()
	p.calls = append(p.calls, rpcCall{method: method, params: params})
	switch method {
	case "eth_requestAccounts":
		err := p.accountErr
		if err == nil {
			*result.(*[]string) = append([]string(nil), p.accounts...)
		}
		p.mu.Unlock()
		return err
	case "wallet_switchEthereumChain":
		if p.switchErr != nil {
			err := p.switchErr
			p.mu.Unlock()
			return err
		}
		id, err := hexutil.DecodeUint64(params[0].(switchChainParams).ChainID)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.chainID = int64(id)
		p.mu.Unlock()
		p.emitChain(int64(id))
		return nil
	case "wallet_addEthereumChain":
		err := p.addErr
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()
	return errors.Errorf("unsupported method %v", method)
}

func (p *fakeProvider) SelectedAddress(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected, nil
}

func (p *fakeProvider) ChainID(context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *fakeProvider) IsExpectedWallet() bool {
	return p.expected
}

func (p *fakeProvider) OnAccountsChanged(fn func([]string)) error {
	p.mu.Lock()
	listening, gate := p.listening, p.gate
	p.mu.Unlock()
	if gate != nil {
		select {
		case listening <- struct{}{}:
		default:
		}
		<-gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAccounts = append(p.onAccounts, fn)
	return nil
}

func (p *fakeProvider) OnChainChanged(fn func(int64)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChain = append(p.onChain, fn)
	return nil
}

func (p *fakeProvider) OnDisconnect(fn func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onGone = append(p.onGone, fn)
	return nil
}

func (p *fakeProvider) RemoveAllListeners() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAccounts, p.onChain, p.onGone = nil, nil, nil
	p.removed++
}

func (p *fakeProvider) setAccounts(accounts ...string) {
	p.mu.Lock()
	p.accounts = accounts
	p.mu.Unlock()
}

func (p *fakeProvider) emitAccounts(accounts ...string) {
	p.mu.Lock()
	fns := append([]func([]string){}, p.onAccounts...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(accounts)
	}
}

func (p *fakeProvider) emitChain(id int64) {
	p.mu.Lock()
	fns := append([]func(int64){}, p.onChain...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (p *fakeProvider) emitDisconnect(err error) {
	p.mu.Lock()
	fns := append([]func(error){}, p.onGone...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (p *fakeProvider) callsTo(method string) []rpcCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []rpcCall
	for _, c := range p.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) listenerCounts() (accounts, chain, gone int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.onAccounts), len(p.onChain), len(p.onGone)
}

// remoteWallet hands out a fresh fakeRemote per factory call, all backed by
// the same paired wallet.
type remoteWallet struct {
	mu       sync.Mutex
	accounts []string
	chainID  int64
	stored   bool
	hang     bool
	sessions []*fakeRemote
}

func (w *remoteWallet) factory(context.Context) (RemoteSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &fakeRemote{wallet: w}
	w.sessions = append(w.sessions, s)
	return s, nil
}

func (w *remoteWallet) last() *fakeRemote {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.sessions) == 0 {
		return nil
	}
	return w.sessions[len(w.sessions)-1]
}

func (w *remoteWallet) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

type fakeRemote struct {
	wallet *remoteWallet

	mu          sync.Mutex
	onAccounts  []func([]string)
	onChain     []func(int64)
	onGone      []func(error)
	disconnects int
	closed      bool
}

func (s *fakeRemote) CachedAccounts() []string {
	s.wallet.mu.Lock()
	defer s.wallet.mu.Unlock()
	if !s.wallet.stored {
		return nil
	}
	return append([]string(nil), s.wallet.accounts...)
}

func (s *fakeRemote) Enable(context.Context) ([]string, error) {
	s.wallet.mu.Lock()
	defer s.wallet.mu.Unlock()
	s.wallet.stored = true
	return append([]string(nil), s.wallet.accounts...), nil
}

func (s *fakeRemote) Request(ctx context.Context, result interface{}, method string, _ ...interface{}) error {
	s.wallet.mu.Lock()
	hang := s.wallet.hang
	accounts := append([]string(nil), s.wallet.accounts...)
	s.wallet.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if method != "eth_accounts" {
		return errors.Errorf("unsupported method %v", method)
	}
	*result.(*[]string) = accounts
	return nil
}

func (s *fakeRemote) ChainID() int64 {
	s.wallet.mu.Lock()
	defer s.wallet.mu.Unlock()
	return s.wallet.chainID
}

func (s *fakeRemote) PeerMeta() (name, url string, icons []string) {
	return "Rainbow", "https://rainbow.me", []string{"https://rainbow.me/a.png", "https://rainbow.me/b.png"}
}

func (s *fakeRemote) OnAccountsChanged(fn func([]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAccounts = append(s.onAccounts, fn)
}

func (s *fakeRemote) OnChainChanged(fn func(int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChain = append(s.onChain, fn)
}

func (s *fakeRemote) OnDisconnect(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onGone = append(s.onGone, fn)
}

func (s *fakeRemote) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAccounts, s.onChain, s.onGone = nil, nil, nil
}

func (s *fakeRemote) Disconnect(context.Context) error {
	s.mu.Lock()
	s.disconnects++
	s.closed = true
	fns := append([]func(error){}, s.onGone...)
	s.mu.Unlock()
	s.wallet.mu.Lock()
	s.wallet.stored = false
	s.wallet.mu.Unlock()
	for _, fn := range fns {
		fn(nil)
	}
	return nil
}

func (s *fakeRemote) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeRemote) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeRemote) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

func (s *fakeRemote) emitChain(id int64) {
	s.mu.Lock()
	fns := append([]func(int64){}, s.onChain...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (s *fakeRemote) emitDisconnect(err error) {
	s.mu.Lock()
	fns := append([]func(error){}, s.onGone...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// fakeChainRPC serves balances of the target chain only.
type fakeChainRPC struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	urls     []string
	err      error
}

func newFakeChainRPC() *fakeChainRPC {
	return &fakeChainRPC{balances: make(map[common.Address]*big.Int)}
}

func (r *fakeChainRPC) set(account string, wei int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[common.HexToAddress(account)] = big.NewInt(wei)
}

func (r *fakeChainRPC) dial(_ context.Context, rawurl string) (BalanceReader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, rawurl)
	if !strings.HasPrefix(rawurl, "https://") {
		return nil, errors.Errorf("bad url %v", rawurl)
	}
	return r, nil
}

func (r *fakeChainRPC) dialedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func (r *fakeChainRPC) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if b, ok := r.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (r *fakeChainRPC) Close() {}

// recordingPrefs counts writes on top of in-memory preferences.
type recordingPrefs struct {
	Preferences
	mu   sync.Mutex
	sets []bool
}

func newRecordingPrefs() *recordingPrefs {
	return &recordingPrefs{Preferences: NewMemoryPreferences()}
}

func (p *recordingPrefs) SetBool(ctx context.Context, key string, value bool) error {
	p.mu.Lock()
	p.sets = append(p.sets, value)
	p.mu.Unlock()
	return p.Preferences.SetBool(ctx, key, value)
}

func (p *recordingPrefs) writes() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.sets...)
}

func (p *recordingPrefs) disconnectedInjected(t *testing.T) bool {
	v, err := p.GetBool(context.Background(), PrefDisconnectedInjected)
	require.NoError(t, err)
	return v
}

type harness struct {
	manager  *Manager
	provider *fakeProvider
	remote   *remoteWallet
	chainRPC *fakeChainRPC
	prefs    *recordingPrefs
}

type harnessOption func(h *harness, o *Options)

func withChainInfo(info *ChainInfo) harnessOption {
	return func(_ *harness, o *Options) {
		o.Chain = NewChainCoordinator(testTargetChain, testRPC, info)
	}
}

func withoutInjected() harnessOption {
	return func(_ *harness, o *Options) {
		o.Injected = nil
	}
}

func withProbeTimeout(d time.Duration) harnessOption {
	return func(h *harness, o *Options) {
		o.Remote = NewRemoteSessionAdapter(h.remote.factory, d)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	h := &harness{
		provider: newFakeProvider("0xABC", 1),
		remote: &remoteWallet{
			accounts: []string{"0x0000000000000000000000000000000000000def"},
			chainID:  137,
		},
		chainRPC: newFakeChainRPC(),
		prefs:    newRecordingPrefs(),
	}
	h.chainRPC.set("0xABC", 1000)
	h.chainRPC.set("0x0000000000000000000000000000000000000def", 2000)

	o := Options{
		Injected: NewInjectedAdapter(h.provider),
		Remote:   NewRemoteSessionAdapter(h.remote.factory, DefaultProbeTimeout),
		Chain: NewChainCoordinator(testTargetChain, testRPC, &ChainInfo{
			Name:     "BNB Smart Chain",
			Symbol:   "BNB",
			Decimals: 18,
		}),
		Balance: NewBalanceService(testRPC, h.chainRPC.dial),
		Prefs:   h.prefs,
	}
	for _, opt := range opts {
		opt(h, &o)
	}
	h.manager = NewManager(o)
	t.Cleanup(h.manager.Close)
	return h
}

func (h *harness) connected(t *testing.T) *Connected {
	c, ok := h.manager.State().(*Connected)
	require.True(t, ok, "expected connected state, got %T", h.manager.State())
	return c
}
