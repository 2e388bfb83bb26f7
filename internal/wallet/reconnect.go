package wallet

import (
	"context"
	"time"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// DefaultSettleDelay gives an injected wallet time to report its selected
// address before startup decides whether to reconnect.
const DefaultSettleDelay = 250 * time.Millisecond

// ReconnectPolicy restores the previous connection once at startup.
type ReconnectPolicy struct {
	manager     *Manager
	provider    InjectedProvider
	newRemote   RemoteSessionFactory
	settleDelay time.Duration
}

// NewReconnectPolicy builds the startup policy. provider and newRemote may be
// nil when the corresponding backend is not configured.
func NewReconnectPolicy(m *Manager, provider InjectedProvider, newRemote RemoteSessionFactory, settleDelay time.Duration) *ReconnectPolicy {
	if settleDelay < 0 {
		settleDelay = DefaultSettleDelay
	}
	return &ReconnectPolicy{
		manager:     m,
		provider:    provider,
		newRemote:   newRemote,
		settleDelay: settleDelay,
	}
}

func (p *ReconnectPolicy) Start(ctx context.Context) {
	go func() {
		kind, err := p.Run(ctx)
		if err != nil {
			log.Warnf("wallet - auto connect %v: %v", kind, err)
		}
	}()
}

// Run waits for the settle delay and then tries at most one backend: the
// injected wallet when it already exposes an account and was not explicitly
// disconnected, otherwise a stored remote session with cached accounts. It
// returns the kind attempted, zero when none was.
func (p *ReconnectPolicy) Run(ctx context.Context) (Kind, error) {
	timer := time.NewTimer(p.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	if p.provider != nil && p.manager.InjectedAvailable() && !p.manager.injectedSuppressed(ctx) {
		address, err := p.provider.SelectedAddress(ctx)
		if err != nil {
			log.Warnf("wallet - read injected selected address: %v", err)
		} else if address != "" {
			log.Infof("wallet - auto connecting injected wallet %v", address)
			return KindInjected, p.manager.Connect(ctx, KindInjected)
		}
	}

	if p.newRemote == nil {
		return 0, nil
	}
	rs, err := p.newRemote(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "open stored remote session")
	}
	cached := rs.CachedAccounts()
	rs.Close()
	if len(cached) == 0 {
		return 0, nil
	}
	log.Infof("wallet - auto connecting stored remote session %v", cached[0])
	return KindRemoteSession, p.manager.Connect(ctx, KindRemoteSession)
}
