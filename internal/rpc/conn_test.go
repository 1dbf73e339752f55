package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/testutil"
)

// echoHandler answers a few fixed methods and records events
type echoHandler struct {
	events chan string
	closed chan struct{}
}

func newEchoHandler() *echoHandler {
	return &echoHandler{events: make(chan string, 16), closed: make(chan struct{})}
}

func (h *echoHandler) Serve(req *Request) {
	switch req.Method {
	case "add":
		var a, b int
		if err := req.Decode(&a, &b); err != nil {
			req.Fail(err)
			return
		}
		req.Reply(a + b)
	case "login":
		req.Fail(model.ErrAuth)
	case "broken":
		req.Fail(errors.New("database password is hunter2"))
	case "note":
		var text string
		_ = req.Decode(&text)
		h.events <- text
	case "hang":
		// never answered
	default:
		req.Fail(model.ErrInvalidCapability)
	}
}

func (h *echoHandler) Closed() {
	close(h.closed)
}

type ConnSuite struct {
	suite.Suite
	loop    *Loop
	server  *httptest.Server
	handler *echoHandler
	client  *Conn
	cliSide *echoHandler
}

func TestConnSuite(t *testing.T) {
	suite.Run(t, new(ConnSuite))
}

func (s *ConnSuite) SetupTest() {
	s.loop = NewLoop(testutil.NopLogger())
	go s.loop.Run()

	s.handler = newEchoHandler()
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r, s.loop, testutil.NopLogger())
		if err != nil {
			return
		}
		conn.Start(s.handler)
	}))

	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	client, err := Dial(context.Background(), url, s.loop, testutil.NopLogger())
	s.Require().NoError(err)
	s.cliSide = newEchoHandler()
	client.Start(s.cliSide)
	s.client = client
}

func (s *ConnSuite) TearDownTest() {
	_ = s.client.Close()
	s.server.Close()
	s.loop.Close()
}

type result struct {
	raw json.RawMessage
	err error
}

func (s *ConnSuite) call(method string, args ...any) result {
	ch := make(chan result, 1)
	s.Require().NoError(s.client.Call(method, args, func(raw json.RawMessage, err error) {
		ch <- result{raw, err}
	}))
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		s.FailNow("timed out waiting for reply")
		return result{}
	}
}

func (s *ConnSuite) TestCallReturnsResult() {
	r := s.call("add", 2, 3)
	s.Require().NoError(r.err)

	var sum int
	s.Require().NoError(DecodeResult(r.raw, &sum))
	s.Equal(5, sum)
}

func (s *ConnSuite) TestErrorCodesMapToSentinels() {
	r := s.call("login")
	s.ErrorIs(r.err, model.ErrAuth)

	var remote *RemoteError
	s.Require().ErrorAs(r.err, &remote)
	s.Equal(CodeAuth, remote.Code)

	r = s.call("nope")
	s.ErrorIs(r.err, model.ErrInvalidCapability)
}

func (s *ConnSuite) TestInternalErrorsAreHidden() {
	r := s.call("broken")
	s.Require().Error(r.err)
	s.Equal("internal error", r.err.Error())
	s.Equal(CodeInternal, CodeOf(r.err))
}

func (s *ConnSuite) TestBadArgumentsAreReported() {
	r := s.call("add", "two", 3)
	s.ErrorIs(r.err, ErrInvalidArguments)

	r = s.call("add", 1, 2, 3)
	s.ErrorIs(r.err, ErrInvalidArguments)
}

func (s *ConnSuite) TestEventsArriveInOrder() {
	for _, text := range []string{"a", "b", "c"} {
		s.Require().NoError(s.client.Event("note", text))
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-s.handler.events:
			s.Equal(want, got)
		case <-time.After(5 * time.Second):
			s.FailNow("timed out waiting for event")
		}
	}
}

func (s *ConnSuite) TestCloseFailsOutstandingCalls() {
	ch := make(chan error, 1)
	s.Require().NoError(s.client.Call("hang", nil, func(_ json.RawMessage, err error) {
		ch <- err
	}))
	// Make sure the call is on the wire before closing.
	s.Require().NoError(s.call("add", 1, 1).err)

	s.Require().NoError(s.client.Close())

	select {
	case err := <-ch:
		s.ErrorIs(err, model.ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		s.FailNow("outstanding call never failed")
	}
	for _, h := range []*echoHandler{s.cliSide, s.handler} {
		select {
		case <-h.closed:
		case <-time.After(5 * time.Second):
			s.FailNow("close hook never ran")
		}
	}

	s.ErrorIs(s.client.Call("add", []any{1, 2}, nil), model.ErrConnectionClosed)
	s.ErrorIs(s.client.Event("note", "x"), model.ErrConnectionClosed)
}

func TestDecodeArgsLeavesMissingTrailingArguments(t *testing.T) {
	args, err := encodeArgs([]any{"alice"})
	if err != nil {
		t.Fatal(err)
	}
	name, allowNew := "", true
	if err := DecodeArgs(args, &name, &allowNew); err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if name != "alice" || !allowNew {
		t.Errorf("got %q %v", name, allowNew)
	}
}

func TestNewRequestAnswersThroughReply(t *testing.T) {
	h := newEchoHandler()

	var got json.RawMessage
	req, err := NewRequest(nil, "add", []any{2, 3}, func(result json.RawMessage, err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = result
	})
	if err != nil {
		t.Fatal(err)
	}
	h.Serve(req)
	if string(got) != "5" {
		t.Errorf("got %s, want 5", got)
	}

	var failure error
	req, err = NewRequest(nil, "login", nil, func(_ json.RawMessage, err error) { failure = err })
	if err != nil {
		t.Fatal(err)
	}
	h.Serve(req)
	if !errors.Is(failure, model.ErrAuth) {
		t.Errorf("got %v, want ErrAuth", failure)
	}
}
