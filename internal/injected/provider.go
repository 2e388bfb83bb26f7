package injected

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// ErrNotDetected means no wallet answered at the configured endpoint.
var ErrNotDetected = errors.New("injected wallet provider not detected")

// Provider talks to a wallet that runs next to the application and exposes
// the EIP-1193 surface over JSON-RPC (for example a desktop wallet on
// ws://127.0.0.1:1248). Events are delivered through eth_subscribe, so the
// endpoint must be a websocket or IPC one for listeners to fire.
type Provider struct {
	client        *rpc.Client
	clientVersion string
	expected      bool

	mu   sync.Mutex
	subs []*rpc.ClientSubscription
	// closed when listeners are removed, stops the forwarding goroutines
	stop          chan struct{}
	onDisconnects []func(error)
}

// Detect dials endpoint and checks a wallet is answering there. expectedClient
// is matched against web3_clientVersion and decides IsExpectedWallet; an empty
// expectedClient accepts any wallet.
func Detect(ctx context.Context, endpoint, expectedClient string) (*Provider, error) {
	if endpoint == "" {
		return nil, ErrNotDetected
	}
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(ErrNotDetected, "dial %v: %v", endpoint, err)
	}
	p := newProvider(client)
	if _, err := p.ChainID(ctx); err != nil {
		client.Close()
		return nil, errors.Wrapf(ErrNotDetected, "probe %v: %v", endpoint, err)
	}
	if err := client.CallContext(ctx, &p.clientVersion, "web3_clientVersion"); err != nil {
		log.Debugf("injected - web3_clientVersion unsupported: %v", err)
	}
	p.expected = expectedClient == "" ||
		strings.Contains(strings.ToLower(p.clientVersion), strings.ToLower(expectedClient))
	log.Infof("injected - detected wallet %q at %v", p.clientVersion, endpoint)
	return p, nil
}

func newProvider(client *rpc.Client) *Provider {
	return &Provider{
		client: client,
		stop:   make(chan struct{}),
	}
}

func (p *Provider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return p.client.CallContext(ctx, result, method, params...)
}

// SelectedAddress is the account the wallet already exposes without prompting,
// empty when the user has not authorised this application yet.
func (p *Provider) SelectedAddress(ctx context.Context) (string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", nil
	}
	return accounts[0], nil
}

func (p *Provider) ChainID(ctx context.Context) (int64, error) {
	var id hexutil.Uint64
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return int64(id), nil
}

// IsExpectedWallet is the capability flag gating chain switch requests.
func (p *Provider) IsExpectedWallet() bool {
	return p.expected
}

func (p *Provider) ClientVersion() string {
	return p.clientVersion
}

func (p *Provider) OnAccountsChanged(fn func(accounts []string)) error {
	ch := make(chan []string, 4)
	sub, stop, err := p.subscribe(ch, "accountsChanged")
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case accounts := <-ch:
				fn(accounts)
			case err := <-sub.Err():
				p.lost(err)
				return
			case <-stop:
				return
			}
		}
	}()
	return nil
}

func (p *Provider) OnChainChanged(fn func(chainID int64)) error {
	ch := make(chan hexutil.Uint64, 4)
	sub, stop, err := p.subscribe(ch, "chainChanged")
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case id := <-ch:
				fn(int64(id))
			case err := <-sub.Err():
				p.lost(err)
				return
			case <-stop:
				return
			}
		}
	}()
	return nil
}

// OnDisconnect fires when an event subscription breaks because the wallet went away.
func (p *Provider) OnDisconnect(fn func(err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDisconnects = append(p.onDisconnects, fn)
	return nil
}

// RemoveAllListeners unsubscribes every event subscription and drops all handlers.
func (p *Provider) RemoveAllListeners() {
	p.mu.Lock()
	subs := p.subs
	close(p.stop)
	p.subs = nil
	p.stop = make(chan struct{})
	p.onDisconnects = nil
	p.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (p *Provider) Close() {
	p.RemoveAllListeners()
	p.client.Close()
}

// subscribeTimeout bounds the eth_subscribe request, not the subscription.
const subscribeTimeout = 10 * time.Second

func (p *Provider) subscribe(ch interface{}, event string) (*rpc.ClientSubscription, <-chan struct{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	sub, err := p.client.EthSubscribe(ctx, ch, event)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "subscribe %v", event)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, sub)
	return sub, p.stop, nil
}

func (p *Provider) lost(err error) {
	// nil means the subscription was unsubscribed on purpose
	if err == nil {
		return
	}
	p.mu.Lock()
	fns := append([]func(error){}, p.onDisconnects...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
