package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "moff-wallet:"

var Redis *redis.Client

func Init(cred *config.DBCredential) {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	Redis = redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       int(db),
	})
	if _, err := Redis.Ping(context.TODO()).Result(); err != nil {
		log.Fatalf("ping to redis:%v", err)
	}
}

func Close() {
	if Redis != nil {
		Redis.Close()
		Redis = nil
	}
}

func DeleteFromPrefix(prefix string) error {
	var (
		cursor uint64
		match        = fmt.Sprintf("%v*", prefix)
		ctx          = context.TODO()
		count  int64 = 200
	)
	log.Debugf("deleting cache pattern %v", match)
	for {
		keys, c, err := Redis.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return errors.WrapAndReport(err, "scan caches")
		}
		cursor = c
		if len(keys) > 0 {
			err = Redis.Del(ctx, keys...).Err()
			if err != nil {
				return errors.WrapAndReport(err, "delete caches")
			}
		}
		if c == 0 {
			return nil
		}
	}
}
