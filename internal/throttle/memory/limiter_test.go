package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/userdata/internal/dependencies/mocks"
	"github.com/mcoot/userdata/internal/throttle"
)

type LimiterSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	limiter *Limiter
	ctx     context.Context
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.limiter = New(throttle.Config{MaxAttempts: 3, Window: time.Minute}, s.clock)
	s.ctx = context.Background()
}

func (s *LimiterSuite) failTimes(key string, n int) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.limiter.Fail(s.ctx, key))
	}
}

func (s *LimiterSuite) allowed(key string) bool {
	ok, err := s.limiter.Allow(s.ctx, key)
	s.Require().NoError(err)
	return ok
}

func (s *LimiterSuite) TestAllowsUntilLimit() {
	s.failTimes("user:bob", 2)
	s.True(s.allowed("user:bob"))

	s.failTimes("user:bob", 1)
	s.False(s.allowed("user:bob"))
	s.True(s.allowed("user:alice"))
}

func (s *LimiterSuite) TestWindowExpires() {
	s.failTimes("k", 3)
	s.False(s.allowed("k"))

	s.clock.Advance(59 * time.Second)
	s.False(s.allowed("k"))

	s.clock.Advance(time.Second)
	s.True(s.allowed("k"))
}

func (s *LimiterSuite) TestWindowStartsAtFirstFailure() {
	s.failTimes("k", 2)
	s.clock.Advance(50 * time.Second)
	s.failTimes("k", 1)
	s.False(s.allowed("k"))

	s.clock.Advance(10 * time.Second)
	s.True(s.allowed("k"))
}

func (s *LimiterSuite) TestReset() {
	s.failTimes("k", 3)
	s.Require().NoError(s.limiter.Reset(s.ctx, "k"))
	s.True(s.allowed("k"))
}
