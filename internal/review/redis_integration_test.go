//go:build integration

package review

import (
	"context"
	"testing"
	"time"

	"driving-school-admin/pkg/errors"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type RedisStoreSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *redis.Client
	store     *RedisStore
	ctx       context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcredis.Run(s.ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)

	opts, err := redis.ParseURL(uri)
	s.Require().NoError(err)
	s.client = redis.NewClient(opts)
	s.Require().NoError(s.client.Ping(s.ctx).Err())
}

func (s *RedisStoreSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(s.ctx).Err())
	s.store = NewRedisStore(s.client, "test", time.Hour)
}

func (s *RedisStoreSuite) TestRoundTripKeepsConflictOrder() {
	s.Require().NoError(s.store.Create(s.ctx, sessionWithConflicts()))

	got, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Require().Len(got.Conflicts, 2)
	s.Equal("c2", got.Conflicts[0].ID, "booked rows come before result rows")
	s.Equal("c1", got.Conflicts[1].ID)
}

func (s *RedisStoreSuite) TestClaimIsSingleShot() {
	s.Require().NoError(s.store.Create(s.ctx, sessionWithConflicts()))

	item, err := s.store.ClaimConflict(s.ctx, "s1", "c1")
	s.Require().NoError(err)
	s.Equal(4, item.Row.Number)

	_, err = s.store.ClaimConflict(s.ctx, "s1", "c1")
	s.ErrorIs(err, errors.ErrConflictNotFound)
}

func (s *RedisStoreSuite) TestUpdateRequiresExistingSession() {
	err := s.store.Update(s.ctx, sessionWithConflicts())
	s.ErrorIs(err, errors.ErrSessionNotFound)

	s.Require().NoError(s.store.Create(s.ctx, sessionWithConflicts()))
	s.Require().NoError(s.store.Update(s.ctx, sessionWithConflicts()))

	s.Require().NoError(s.store.Delete(s.ctx, "s1"))
	_, err = s.store.Get(s.ctx, "s1")
	s.ErrorIs(err, errors.ErrSessionNotFound)
}
