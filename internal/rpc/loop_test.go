package rpc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/userdata/internal/testutil"
)

type LoopSuite struct {
	suite.Suite
	loop *Loop
}

func TestLoopSuite(t *testing.T) {
	suite.Run(t, new(LoopSuite))
}

func (s *LoopSuite) SetupTest() {
	s.loop = NewLoop(testutil.NopLogger())
	go s.loop.Run()
}

func (s *LoopSuite) TearDownTest() {
	s.loop.Close()
	<-s.loop.Done()
}

func (s *LoopSuite) TestRunsInPostOrder() {
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		s.True(s.loop.Post(func() { got = append(got, i) }))
	}
	s.Require().NoError(s.loop.Do(func() {}))

	s.Require().Len(got, 100)
	for i, v := range got {
		s.Equal(i, v)
	}
}

func (s *LoopSuite) TestPostFromManyGoroutines() {
	var wg sync.WaitGroup
	count := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.loop.Post(func() { count++ })
			}
		}()
	}
	wg.Wait()
	s.Require().NoError(s.loop.Do(func() {}))
	s.Equal(500, count)
}

func (s *LoopSuite) TestPanicDoesNotStopLoop() {
	s.loop.Post(func() { panic("boom") })

	ran := false
	s.Require().NoError(s.loop.Do(func() { ran = true }))
	s.True(ran)
}

func (s *LoopSuite) TestPostAfterClose() {
	s.loop.Close()
	<-s.loop.Done()

	s.False(s.loop.Post(func() {}))
	s.ErrorIs(s.loop.Do(func() {}), ErrLoopClosed)
}
