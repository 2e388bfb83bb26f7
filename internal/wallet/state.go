package wallet

import (
	"context"
	"math/big"
)

// State is either *Disconnected or *Connected. Values are immutable snapshots;
// the manager replaces them wholesale.
type State interface {
	isState()
}

// Disconnected offers the ways to connect.
type Disconnected struct {
	// ConnectInjected is nil when no injected wallet was detected.
	ConnectInjected      func(ctx context.Context) error
	ConnectRemoteSession func(ctx context.Context) error
}

// Balance of the account on the target chain.
type Balance struct {
	Value   *big.Int
	Refresh func(ctx context.Context) (*big.Int, error)
}

// Connected is a live session.
type Connected struct {
	Account            string
	Kind               Kind
	Session            Session
	TargetChainBalance Balance
	WalletInfo         WalletInfo
	// CurrentChainID is the chain the wallet reports, not necessarily the target chain.
	CurrentChainID int64
	Disconnect     func(ctx context.Context) error
	// RequestSwitchToCorrectChain is nil unless the wallet supports switching.
	RequestSwitchToCorrectChain func(ctx context.Context) error

	targetChainID int64
}

func (*Disconnected) isState() {}
func (*Connected) isState()    {}

func (c *Connected) TargetChainID() int64 {
	return c.targetChainID
}

func (c *Connected) IsOnTargetChain() bool {
	return c.CurrentChainID == c.targetChainID
}
