package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 5
	testWindow = time.Minute
)

type StoreSuite struct {
	suite.Suite
	store *Store
	clock time.Time
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.clock = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.store = New()
	s.store.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *StoreSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *StoreSuite) TestAllowN() {
	s.Run("first request allowed", func() {
		result, err := s.store.AllowN(s.ctx, "k", 1, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(testLimit-1, result.Remaining)
		s.Equal(s.clock.Add(testWindow), result.ResetAt)
	})

	s.Run("requests up to the limit allowed then denied", func() {
		for i := range testLimit {
			result, err := s.store.AllowN(s.ctx, "k", 1, testLimit, testWindow)
			s.Require().NoError(err)
			s.True(result.Allowed, "request %d", i)
		}
		result, err := s.store.AllowN(s.ctx, "k", 1, testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Zero(result.Remaining)
	})

	s.Run("cost larger than what is left is denied without consuming", func() {
		_, err := s.store.AllowN(s.ctx, "k", testLimit-1, testLimit, testWindow)
		s.Require().NoError(err)

		result, err := s.store.AllowN(s.ctx, "k", 2, testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)

		result, err = s.store.AllowN(s.ctx, "k", 1, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Zero(result.Remaining)
	})

	s.Run("window slides", func() {
		_, err := s.store.AllowN(s.ctx, "k", testLimit, testLimit, testWindow)
		s.Require().NoError(err)

		s.clock = s.clock.Add(testWindow / 2)
		result, err := s.store.AllowN(s.ctx, "k", 1, testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(s.clock.Add(testWindow/2), result.ResetAt)

		s.clock = s.clock.Add(testWindow / 2)
		result, err = s.store.AllowN(s.ctx, "k", 1, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("keys are independent", func() {
		_, err := s.store.AllowN(s.ctx, "a", testLimit, testLimit, testWindow)
		s.Require().NoError(err)

		result, err := s.store.AllowN(s.ctx, "b", 1, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("reset clears the window", func() {
		_, err := s.store.AllowN(s.ctx, "k", testLimit, testLimit, testWindow)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Reset(s.ctx, "k"))

		result, err := s.store.AllowN(s.ctx, "k", 1, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}
