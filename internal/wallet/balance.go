package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/ratelimit"
)

// BalanceReader is the part of ethclient.Client the balance service needs.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Dialer opens a read-only connection to an RPC endpoint.
type Dialer func(ctx context.Context, rawurl string) (BalanceReader, error)

func DialEthClient(ctx context.Context, rawurl string) (BalanceReader, error) {
	client, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// BalanceService reads balances on the target chain through its own RPC
// endpoint, whatever chain the wallet is on.
type BalanceService struct {
	rpcURL  string
	dial    Dialer
	limiter ratelimit.Limiter
}

func NewBalanceService(rpcURL string, dial Dialer) *BalanceService {
	if dial == nil {
		dial = DialEthClient
	}
	return &BalanceService{rpcURL: rpcURL, dial: dial}
}

// WithRateLimit spaces reads so at most perSecond of them start each second.
func (b *BalanceService) WithRateLimit(perSecond int) *BalanceService {
	if perSecond > 0 {
		b.limiter = ratelimit.New(perSecond)
	}
	return b
}

// Fetch returns the latest balance of account in wei.
func (b *BalanceService) Fetch(ctx context.Context, account string) (*big.Int, error) {
	if b.limiter != nil {
		b.limiter.Take()
		if err := ctx.Err(); err != nil {
			return nil, newKindError(ErrBalanceFetch, err, "balance of %v", account)
		}
	}
	client, err := b.dial(ctx, b.rpcURL)
	if err != nil {
		return nil, newKindError(ErrBalanceFetch, err, "dial %v", b.rpcURL)
	}
	defer client.Close()

	balance, err := client.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return nil, newKindError(ErrBalanceFetch, err, "balance of %v", account)
	}
	return balance, nil
}
