package wallet

import (
	"context"
	"sync"
)

// PrefDisconnectedInjected is set when the user explicitly disconnected the
// injected wallet. It stops automatic injected reconnects until the next
// manual injected connect succeeds.
const PrefDisconnectedInjected = "disconnect_injected"

// Preferences is a small persisted key value store. Missing keys read as false.
type Preferences interface {
	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
}

type memoryPreferences struct {
	mu     sync.Mutex
	values map[string]bool
}

// NewMemoryPreferences keeps preferences for the lifetime of the process.
func NewMemoryPreferences() Preferences {
	return &memoryPreferences{values: make(map[string]bool)}
}

func (p *memoryPreferences) GetBool(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[key], nil
}

func (p *memoryPreferences) SetBool(_ context.Context, key string, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}
