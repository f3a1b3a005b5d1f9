//go:build integration

package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type RedisLockSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *redis.Client
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(ctx)
	s.Require().NoError(err)
	opts, err := redis.ParseURL(uri)
	s.Require().NoError(err)

	s.client, err = Connect(ctx, Options{Addr: opts.Addr})
	s.Require().NoError(err)
}

func (s *RedisLockSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *RedisLockSuite) TestOnlyOneConcurrentHolder() {
	locker := NewRedisLocker(s.client, 5*time.Second)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var entered, rejected atomic.Int32
	release := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "nin:digest", func(context.Context) error {
				entered.Add(1)
				<-release
				return nil
			})
			if errors.Is(err, ErrLockNotAcquired) {
				rejected.Add(1)
			}
		}()
	}

	s.Eventually(func() bool { return entered.Load()+rejected.Load() == workers }, 5*time.Second, 10*time.Millisecond)
	close(release)
	wg.Wait()

	s.Equal(int32(1), entered.Load())
	s.Equal(int32(workers-1), rejected.Load())
}

func (s *RedisLockSuite) TestKeyReleasedAfterUse() {
	locker := NewRedisLocker(s.client, 5*time.Second)
	ctx := context.Background()

	s.Require().NoError(locker.WithLock(ctx, "nin:x", func(context.Context) error { return nil }))

	n, err := s.client.Exists(ctx, "lock:nin:x").Result()
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RedisLockSuite) TestForeignTokenNotReleased() {
	ctx := context.Background()
	rl := &redisLocker{client: s.client, ttl: 5 * time.Second}

	s.Require().NoError(s.client.Set(ctx, "lock:nin:y", "someone-else", time.Minute).Err())
	s.Require().NoError(rl.release(ctx, "lock:nin:y", "my-token"))

	val, err := s.client.Get(ctx, "lock:nin:y").Result()
	s.Require().NoError(err)
	s.Equal("someone-else", val)
}
