package cache

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
)

const sessionKey = KeyPrefix + "walletconnect:session"

// SessionStore keeps the WalletConnect session in redis so a restart can resume it.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Load(ctx context.Context) (*walletconnect.StoredSession, error) {
	data, err := s.client.Get(ctx, sessionKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load wallet connect session")
	}
	var stored walletconnect.StoredSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrap(err, "decode wallet connect session")
	}
	return &stored, nil
}

func (s *SessionStore) Save(ctx context.Context, stored *walletconnect.StoredSession) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "encode wallet connect session")
	}
	if err := s.client.Set(ctx, sessionKey, data, 0).Err(); err != nil {
		return errors.Wrap(err, "save wallet connect session")
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, sessionKey).Err(); err != nil {
		return errors.Wrap(err, "delete wallet connect session")
	}
	return nil
}
