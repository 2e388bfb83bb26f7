package wallet

import (
	"context"
	"time"

	"moff.io/moff-wallet/pkg/concurrent"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type EventType string

const (
	EventConnected    EventType = "connected"
	EventUpdated      EventType = "updated"
	EventDisconnected EventType = "disconnected"
)

// Event is the flat record of one published state.
type Event struct {
	Type          EventType `json:"type"`
	Account       string    `json:"account,omitempty"`
	Kind          string    `json:"kind,omitempty"`
	ChainID       int64     `json:"chain_id,omitempty"`
	TargetChainID int64     `json:"target_chain_id,omitempty"`
	OnTargetChain bool      `json:"on_target_chain"`
	Balance       string    `json:"target_chain_balance,omitempty"`
	WalletName    string    `json:"wallet_name,omitempty"`
	At            time.Time `json:"at"`
}

// NewEvent flattens s. A Connected state always yields EventConnected, the
// relay downgrades repeats to EventUpdated.
func NewEvent(s State, at time.Time) Event {
	e := Event{Type: EventDisconnected, At: at}
	c, ok := s.(*Connected)
	if !ok {
		return e
	}
	e.Type = EventConnected
	e.Account = c.Account
	e.Kind = c.Kind.String()
	e.ChainID = c.CurrentChainID
	e.TargetChainID = c.TargetChainID()
	e.OnTargetChain = c.IsOnTargetChain()
	e.WalletName = c.WalletInfo.Name
	if c.TargetChainBalance.Value != nil {
		e.Balance = c.TargetChainBalance.Value.String()
	}
	return e
}

type EventSink interface {
	Publish(ctx context.Context, e Event) error
}

// EventRelay forwards every state the manager publishes to the sinks, off the
// manager's goroutines and in publish order.
type EventRelay struct {
	manager *Manager
	sinks   []EventSink
	loop    *concurrent.Loop
	cancel  func()
	last    *Event
	now     func() time.Time
}

func NewEventRelay(m *Manager, sinks ...EventSink) *EventRelay {
	return &EventRelay{manager: m, sinks: sinks, now: time.Now}
}

func (r *EventRelay) Start(ctx context.Context) {
	r.loop = concurrent.NewLoop(64)
	r.cancel = r.manager.Watch(func(s State) {
		e := NewEvent(s, r.now())
		r.loop.Post(func() { r.forward(ctx, e) })
	})
}

func (r *EventRelay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.loop != nil {
		r.loop.Stop()
	}
}

func (r *EventRelay) forward(ctx context.Context, e Event) {
	if r.last != nil {
		switch {
		case e.Type == EventDisconnected && r.last.Type == EventDisconnected:
			return
		case e.Type == EventConnected && r.last.Type != EventDisconnected &&
			e.Account == r.last.Account && e.Kind == r.last.Kind:
			e.Type = EventUpdated
		}
	}
	r.last = &e
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, e); err != nil {
			log.Error(errors.WrapfAndReport(err, "forward %v event", e.Type))
		}
	}
}
