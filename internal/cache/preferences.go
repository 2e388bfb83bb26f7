package cache

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	"moff.io/moff-wallet/pkg/errors"
)

// Preferences stores boolean flags as redis strings under KeyPrefix+"pref:".
type Preferences struct {
	client *redis.Client
}

func NewPreferences(client *redis.Client) *Preferences {
	return &Preferences{client: client}
}

func (p *Preferences) key(name string) string {
	return KeyPrefix + "pref:" + name
}

func (p *Preferences) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := p.client.Get(ctx, p.key(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get preference %v", key)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "parse preference %v", key)
	}
	return b, nil
}

func (p *Preferences) SetBool(ctx context.Context, key string, value bool) error {
	if err := p.client.Set(ctx, p.key(key), strconv.FormatBool(value), 0).Err(); err != nil {
		return errors.Wrapf(err, "set preference %v", key)
	}
	return nil
}
