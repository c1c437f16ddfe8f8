package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/services"
)

// turn lock TTL: a stuck grader call should never wedge a trainee for long
const lockTTL = 90 * time.Second

type TurnLock interface {
	services.TurnLock
	Close() error
}

type turnLock struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewTurnLock builds a per-trainee processing lock on Redis SET NX. The lock
// is optional infrastructure: callers that get an error here may run without
// one in single-instance deployments.
func NewTurnLock(log *logger.Logger) (TurnLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_LOCK_PREFIX"))
	if prefix == "" {
		prefix = "turnlock"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &turnLock{
		log:    log.With("service", "RedisTurnLock"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (l *turnLock) Acquire(ctx context.Context, key string) (func(), error) {
	full := l.prefix + ":" + key
	ok, err := l.rdb.SetNX(ctx, full, "1", lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return nil, services.ErrTraineeBusy
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.rdb.Del(ctx, full).Err(); err != nil {
			l.log.Warn("Failed to release turn lock", "error", err)
		}
	}
	return release, nil
}

func (l *turnLock) Close() error {
	if l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
