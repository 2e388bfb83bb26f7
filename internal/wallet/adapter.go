package wallet

import (
	"context"
	"strings"

	"moff.io/moff-wallet/pkg/errors"
)

// Kind names a wallet backend.
type Kind int

const (
	KindInjected Kind = iota + 1
	KindRemoteSession
)

func (k Kind) String() string {
	switch k {
	case KindInjected:
		return "injected"
	case KindRemoteSession:
		return "walletconnect"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "injected":
		return KindInjected, nil
	case "walletconnect", "remote":
		return KindRemoteSession, nil
	}
	return 0, errors.Errorf("unknown wallet kind %q", s)
}

// WalletInfo describes the wallet on the other end, empty for injected wallets.
type WalletInfo struct {
	Name string `json:"name,omitempty"`
	Icon string `json:"icon,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Handlers receive wallet-originated events. Nil handlers are skipped.
type Handlers struct {
	AccountsChanged func(accounts []string)
	ChainChanged    func(chainID int64)
	Disconnect      func(err error)
}

// Requester issues raw JSON-RPC requests to a wallet.
type Requester interface {
	Request(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

// Session is one established wallet connection, owned by whoever holds it.
type Session interface {
	Requester
	Kind() Kind
	// Accounts in wallet order, the first one is the active account.
	Accounts() []string
	ChainID() int64
	WalletInfo() WalletInfo
	CanSwitchChain() bool
	// Subscribe attaches handlers, dropping any earlier set first.
	Subscribe(h Handlers)
	Unsubscribe()
	// Disconnect ends the session on the wallet side when the backend has such a notion.
	Disconnect(ctx context.Context) error
	// Close releases local resources only.
	Close()
}

// Adapter establishes sessions with one backend.
type Adapter interface {
	Kind() Kind
	Connect(ctx context.Context) (Session, error)
}
