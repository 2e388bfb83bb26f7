package wallet

import (
	"context"

	"go.uber.org/atomic"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// InjectedProvider is the surface of a wallet living next to the application,
// see injected.Provider.
type InjectedProvider interface {
	Requester
	SelectedAddress(ctx context.Context) (string, error)
	ChainID(ctx context.Context) (int64, error)
	// IsExpectedWallet gates chain switch support.
	IsExpectedWallet() bool
	OnAccountsChanged(fn func(accounts []string)) error
	OnChainChanged(fn func(chainID int64)) error
	OnDisconnect(fn func(err error)) error
	RemoveAllListeners()
}

type injectedAdapter struct {
	provider InjectedProvider
}

func NewInjectedAdapter(provider InjectedProvider) Adapter {
	return &injectedAdapter{provider: provider}
}

func (a *injectedAdapter) Kind() Kind {
	return KindInjected
}

func (a *injectedAdapter) Connect(ctx context.Context) (Session, error) {
	a.provider.RemoveAllListeners()

	var accounts []string
	if err := a.provider.Request(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, errors.Wrap(err, "request accounts")
	}
	if len(accounts) == 0 {
		return nil, errors.New("wallet returned no accounts")
	}
	chainID, err := a.provider.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read chain id")
	}
	return &injectedSession{
		provider:  a.provider,
		accounts:  accounts,
		chainID:   chainID,
		canSwitch: a.provider.IsExpectedWallet(),
	}, nil
}

// injectedSession shares the provider with every other injected session, so
// it only drops the provider's listeners when it attached them itself.
type injectedSession struct {
	provider   InjectedProvider
	accounts   []string
	chainID    int64
	canSwitch  bool
	subscribed atomic.Bool
}

func (s *injectedSession) Kind() Kind {
	return KindInjected
}

func (s *injectedSession) Accounts() []string {
	return append([]string(nil), s.accounts...)
}

func (s *injectedSession) ChainID() int64 {
	return s.chainID
}

func (s *injectedSession) WalletInfo() WalletInfo {
	return WalletInfo{}
}

func (s *injectedSession) CanSwitchChain() bool {
	return s.canSwitch
}

func (s *injectedSession) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return s.provider.Request(ctx, result, method, params...)
}

func (s *injectedSession) Subscribe(h Handlers) {
	s.provider.RemoveAllListeners()
	s.subscribed.Store(true)
	if h.AccountsChanged != nil {
		if err := s.provider.OnAccountsChanged(h.AccountsChanged); err != nil {
			log.Warnf("injected - listen accountsChanged: %v", err)
		}
	}
	if h.ChainChanged != nil {
		if err := s.provider.OnChainChanged(h.ChainChanged); err != nil {
			log.Warnf("injected - listen chainChanged: %v", err)
		}
	}
	if h.Disconnect != nil {
		if err := s.provider.OnDisconnect(h.Disconnect); err != nil {
			log.Warnf("injected - listen disconnect: %v", err)
		}
	}
}

func (s *injectedSession) Unsubscribe() {
	if s.subscribed.CAS(true, false) {
		s.provider.RemoveAllListeners()
	}
}

// Disconnect is a no-op: an injected wallet cannot be disconnected remotely.
func (s *injectedSession) Disconnect(context.Context) error {
	return nil
}

func (s *injectedSession) Close() {
	s.Unsubscribe()
}
