package mocks

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
)

// PeerEvent is a recorded notification
type PeerEvent struct {
	Method string
	Args   []any
}

// PeerCall is a recorded call awaiting an answer from the test
type PeerCall struct {
	Method   string
	Args     []any
	reply    rpc.ReplyFunc
	answered bool
}

// MockPeer records traffic instead of sending it. Tests answer calls with
// Reply or Fail, which run the continuation synchronously.
type MockPeer struct {
	mu     sync.Mutex
	id     string
	Events []PeerEvent
	Calls  []*PeerCall
	Closed int
}

// Ensure MockPeer implements Peer
var _ rpc.Peer = (*MockPeer)(nil)

// NewMockPeer creates a MockPeer with the given id
func NewMockPeer(id string) *MockPeer {
	return &MockPeer{id: id}
}

func (p *MockPeer) ID() string {
	return p.id
}

func (p *MockPeer) Event(method string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed > 0 {
		return model.ErrConnectionClosed
	}
	p.Events = append(p.Events, PeerEvent{Method: method, Args: args})
	return nil
}

func (p *MockPeer) Call(method string, args []any, reply rpc.ReplyFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed > 0 {
		return model.ErrConnectionClosed
	}
	if reply == nil {
		reply = func(json.RawMessage, error) {}
	}
	p.Calls = append(p.Calls, &PeerCall{Method: method, Args: args, reply: reply})
	return nil
}

func (p *MockPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed++
	return nil
}

// IsClosed reports whether Close was called
func (p *MockPeer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed > 0
}

// Reply answers the oldest unanswered call to method with result
func (p *MockPeer) Reply(method string, result any) error {
	call, err := p.next(method)
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	call.reply(data, nil)
	return nil
}

// Fail answers the oldest unanswered call to method with err
func (p *MockPeer) Fail(method string, err error) error {
	call, nextErr := p.next(method)
	if nextErr != nil {
		return nextErr
	}
	call.reply(nil, err)
	return nil
}

func (p *MockPeer) next(method string) (*PeerCall, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.Calls {
		if c.Method == method && !c.answered {
			c.answered = true
			return c, nil
		}
	}
	return nil, fmt.Errorf("mock peer %s: no pending call to %s", p.id, method)
}

// Pending returns the unanswered calls to method
func (p *MockPeer) Pending(method string) []*PeerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*PeerCall
	for _, c := range p.Calls {
		if c.Method == method && !c.answered {
			out = append(out, c)
		}
	}
	return out
}

// EventsNamed returns the recorded events for method
func (p *MockPeer) EventsNamed(method string) []PeerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PeerEvent
	for _, e := range p.Events {
		if e.Method == method {
			out = append(out, e)
		}
	}
	return out
}

// CallsNamed returns every recorded call to method
func (p *MockPeer) CallsNamed(method string) []*PeerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*PeerCall
	for _, c := range p.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
