package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"moff.io/moff-wallet/internal/chains"
	"moff.io/moff-wallet/pkg/log"
)

// ChainInfo is the metadata sent with wallet_addEthereumChain.
type ChainInfo struct {
	Name     string
	Symbol   string
	Decimals int
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addChainParams struct {
	ChainID        string         `json:"chainId"`
	ChainName      string         `json:"chainName"`
	NativeCurrency nativeCurrency `json:"nativeCurrency"`
	RPCUrls        []string       `json:"rpcUrls"`
}

// ChainCoordinator moves a wallet onto the target chain.
type ChainCoordinator struct {
	targetChainID int64
	rpcURL        string
	info          *ChainInfo
}

// NewChainCoordinator builds a coordinator for targetChainID. info may be nil,
// the built-in chain table is used then.
func NewChainCoordinator(targetChainID int64, rpcURL string, info *ChainInfo) *ChainCoordinator {
	return &ChainCoordinator{
		targetChainID: targetChainID,
		rpcURL:        rpcURL,
		info:          info,
	}
}

func (c *ChainCoordinator) TargetChainID() int64 {
	return c.targetChainID
}

func (c *ChainCoordinator) IsOnTargetChain(currentChainID int64) bool {
	return currentChainID == c.targetChainID
}

// RequestSwitchToCorrectChain asks the wallet to switch to the target chain.
// Nothing is sent when the wallet is already there. An unrecognized chain is
// added with exactly one wallet_addEthereumChain; other failures are returned.
func (c *ChainCoordinator) RequestSwitchToCorrectChain(ctx context.Context, r Requester, currentChainID int64) error {
	if c.IsOnTargetChain(currentChainID) {
		return nil
	}
	chainHex := hexutil.EncodeUint64(uint64(c.targetChainID))
	err := r.Request(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: chainHex})
	if err == nil {
		return nil
	}
	if code, ok := errorCode(err); !ok || code != codeChainUnrecognized {
		return newKindError(ErrChainSwitch, err, "switch to %v", chainHex)
	}

	log.Infof("wallet - chain %v unknown to wallet, adding it", chainHex)
	info, err := c.chainInfo()
	if err != nil {
		return err
	}
	params := addChainParams{
		ChainID:   chainHex,
		ChainName: info.Name,
		NativeCurrency: nativeCurrency{
			Name:     info.Name,
			Symbol:   info.Symbol,
			Decimals: info.Decimals,
		},
		RPCUrls: []string{c.rpcURL},
	}
	if err := r.Request(ctx, nil, "wallet_addEthereumChain", params); err != nil {
		return newKindError(ErrChainSwitch, err, "add chain %v", chainHex)
	}
	return nil
}

func (c *ChainCoordinator) chainInfo() (ChainInfo, error) {
	if c.info != nil && c.info.Name != "" {
		return *c.info, nil
	}
	if known, ok := chains.Lookup(c.targetChainID); ok {
		return ChainInfo{Name: known.Name, Symbol: known.Symbol, Decimals: known.Decimals}, nil
	}
	return ChainInfo{}, ErrChainInfoMissing
}
