package wallet

import (
	"context"
	"time"

	"moff.io/moff-wallet/pkg/concurrent"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// DefaultProbeTimeout bounds the liveness check of a resumed remote session.
const DefaultProbeTimeout = 3 * time.Second

// RemoteSession is the surface of a WalletConnect session, see walletconnect.Session.
type RemoteSession interface {
	Requester
	// CachedAccounts is known without a round trip, empty when pairing is still needed.
	CachedAccounts() []string
	Enable(ctx context.Context) ([]string, error)
	ChainID() int64
	PeerMeta() (name, url string, icons []string)
	OnAccountsChanged(fn func(accounts []string))
	OnChainChanged(fn func(chainID int64))
	OnDisconnect(fn func(err error))
	RemoveAllListeners()
	Disconnect(ctx context.Context) error
	Close()
}

// RemoteSessionFactory builds a new, not yet enabled, RemoteSession. Each call
// must return a fresh value.
type RemoteSessionFactory func(ctx context.Context) (RemoteSession, error)

type remoteAdapter struct {
	newSession   RemoteSessionFactory
	probeTimeout time.Duration
}

func NewRemoteSessionAdapter(factory RemoteSessionFactory, probeTimeout time.Duration) Adapter {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &remoteAdapter{newSession: factory, probeTimeout: probeTimeout}
}

func (a *remoteAdapter) Kind() Kind {
	return KindRemoteSession
}

// Connect enables a fresh session and checks it is alive with an eth_accounts
// probe. A probe that does not answer in time yields ErrNoUsableSession.
func (a *remoteAdapter) Connect(ctx context.Context) (Session, error) {
	rs, err := a.newSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create remote session")
	}
	rs.RemoveAllListeners()

	accounts, err := rs.Enable(ctx)
	if err != nil {
		rs.Close()
		return nil, errors.Wrap(err, "enable remote session")
	}

	var probed []string
	err = concurrent.Guard(ctx, a.probeTimeout, func(ctx context.Context) error {
		return rs.Request(ctx, &probed, "eth_accounts")
	})
	if errors.Is(err, concurrent.ErrTimeout) {
		log.Infof("wallet connect - session did not answer within %v", a.probeTimeout)
		rs.Close()
		return nil, ErrNoUsableSession
	}
	if err != nil {
		rs.Close()
		return nil, errors.Wrap(err, "probe remote session")
	}
	if len(probed) > 0 {
		accounts = probed
	}
	if len(accounts) == 0 {
		rs.Close()
		return nil, ErrNoUsableSession
	}

	name, url, icons := rs.PeerMeta()
	info := WalletInfo{Name: name, URL: url}
	if len(icons) > 0 {
		info.Icon = icons[0]
	}
	return &remoteSession{
		rs:       rs,
		accounts: accounts,
		chainID:  rs.ChainID(),
		info:     info,
	}, nil
}

type remoteSession struct {
	rs       RemoteSession
	accounts []string
	chainID  int64
	info     WalletInfo
}

func (s *remoteSession) Kind() Kind {
	return KindRemoteSession
}

func (s *remoteSession) Accounts() []string {
	return append([]string(nil), s.accounts...)
}

func (s *remoteSession) ChainID() int64 {
	return s.chainID
}

func (s *remoteSession) WalletInfo() WalletInfo {
	return s.info
}

func (s *remoteSession) CanSwitchChain() bool {
	return false
}

func (s *remoteSession) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return s.rs.Request(ctx, result, method, params...)
}

func (s *remoteSession) Subscribe(h Handlers) {
	s.rs.RemoveAllListeners()
	if h.AccountsChanged != nil {
		s.rs.OnAccountsChanged(h.AccountsChanged)
	}
	if h.ChainChanged != nil {
		s.rs.OnChainChanged(h.ChainChanged)
	}
	if h.Disconnect != nil {
		s.rs.OnDisconnect(h.Disconnect)
	}
}

func (s *remoteSession) Unsubscribe() {
	s.rs.RemoveAllListeners()
}

func (s *remoteSession) Disconnect(ctx context.Context) error {
	return s.rs.Disconnect(ctx)
}

func (s *remoteSession) Close() {
	s.rs.Close()
}
