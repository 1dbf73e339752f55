package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/gateway"
)

// Demo game calls
const (
	MethodWhoami = "whoami"
	MethodEcho   = "echo"

	EventWelcome = "welcome"
)

// WhoamiResult answers whoami
type WhoamiResult struct {
	Channel  int            `json:"channel"`
	Name     string         `json:"name"`
	Managed  string         `json:"managed,omitempty"`
	Identity model.Identity `json:"identity"`
}

// player is the demo game's object for a logged in visitor
type player struct {
	info   gateway.PlayerInfo
	logger *zap.Logger
}

var (
	_ gateway.Player      = (*player)(nil)
	_ gateway.CallHandler = (*player)(nil)
)

func newPlayerFactory(logger *zap.Logger) gateway.PlayerFactory {
	return func(info gateway.PlayerInfo) (gateway.Player, error) {
		return &player{
			info:   info,
			logger: logger.With(zap.Int("channel", info.Channel)),
		}, nil
	}
}

func (p *player) Init(done func(error)) {
	err := p.info.Remote.Event(EventWelcome, fmt.Sprintf("Welcome, %s", p.info.Name))
	if err != nil {
		p.logger.Debug("welcome not sent", zap.Error(err))
	}
	done(nil)
}

func (p *player) Closed() {
	p.logger.Debug("player left")
}

func (p *player) HandleCall(req *rpc.Request) {
	switch req.Method {
	case MethodWhoami:
		req.Reply(WhoamiResult{
			Channel:  p.info.Channel,
			Name:     p.info.Name,
			Managed:  p.info.Managed,
			Identity: p.info.Identity,
		})
	case MethodEcho:
		var text string
		if err := req.Decode(&text); err != nil {
			req.Fail(err)
			return
		}
		req.Reply(text)
	default:
		req.Fail(fmt.Errorf("%w: %s", model.ErrInvalidCapability, req.Method))
	}
}
