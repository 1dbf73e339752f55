// Package proxy binds a peer to a channel so calls made on behalf of one
// connection carry that connection's context implicitly.
package proxy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
)

// Proxy prepends its channel to the arguments of every call
type Proxy struct {
	peer         rpc.Peer
	channel      int
	capabilities map[string]bool
}

// New creates a proxy for channel on peer. When capabilities are given,
// any other method fails with model.ErrInvalidCapability.
func New(peer rpc.Peer, channel int, capabilities ...string) *Proxy {
	p := &Proxy{peer: peer, channel: channel}
	if len(capabilities) > 0 {
		p.capabilities = make(map[string]bool, len(capabilities))
		for _, c := range capabilities {
			p.capabilities[c] = true
		}
	}
	return p
}

// Channel returns the bound channel
func (p *Proxy) Channel() int {
	return p.channel
}

// Peer returns the wrapped peer
func (p *Proxy) Peer() rpc.Peer {
	return p.peer
}

// Event sends a notification and returns immediately
func (p *Proxy) Event(method string, args ...any) error {
	if err := p.check(method); err != nil {
		return err
	}
	return p.peer.Event(method, p.bind(args)...)
}

// Call issues a request; reply runs on the loop with the outcome. A remote
// "unknown method" answer arrives as model.ErrInvalidCapability.
func (p *Proxy) Call(method string, args []any, reply rpc.ReplyFunc) error {
	if err := p.check(method); err != nil {
		return err
	}
	return p.peer.Call(method, p.bind(args), reply)
}

func (p *Proxy) check(method string) error {
	if method == "" {
		return fmt.Errorf("%w: empty method", model.ErrInvalidCapability)
	}
	if p.capabilities != nil && !p.capabilities[method] {
		return fmt.Errorf("%w: %s", model.ErrInvalidCapability, method)
	}
	return nil
}

func (p *Proxy) bind(args []any) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, p.channel)
	return append(out, args...)
}

// Await adapts a typed continuation into a ReplyFunc
func Await[T any](done func(T, error)) rpc.ReplyFunc {
	return func(raw json.RawMessage, err error) {
		var v T
		if err != nil {
			done(v, err)
			return
		}
		if err := rpc.DecodeResult(raw, &v); err != nil {
			done(v, err)
			return
		}
		done(v, nil)
	}
}

// IsCapabilityError reports whether err means the method is not available
func IsCapabilityError(err error) bool {
	return errors.Is(err, model.ErrInvalidCapability)
}
