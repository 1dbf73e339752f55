package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/proxy"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/throttle"
)

// lookupToken returns the game login a provider token belongs to
func (s *Session) lookupToken(token string) (*gameToken, *binding, error) {
	gt, ok := s.svc.tokens[token]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown provider token", model.ErrInvalidToken)
	}
	b, err := gt.game.game(gt.channel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: game logged out", model.ErrInvalidToken)
	}
	return gt, b, nil
}

func (s *Session) loginManaged(req *rpc.Request) {
	var token, name, password string
	if err := req.Decode(&token, &name, &password); err != nil {
		req.Fail(err)
		return
	}
	gt, b, err := s.lookupToken(token)
	if err != nil {
		req.Fail(err)
		return
	}

	ctx, cancel := s.svc.storeContext()
	defer cancel()
	game := b.game
	var identity *model.Identity
	err = s.svc.guard(ctx, "managed", throttle.Key("managed", game.User, game.Name, name), func() error {
		var err error
		identity, err = s.svc.store.AuthenticateManagedPlayer(ctx, game.User, game.Name, name, password)
		return err
	})
	if err != nil {
		req.Fail(err)
		return
	}
	s.relay(req, token, gt, *identity)
}

// registerManaged creates a managed player and logs it in. The game must
// have logged in with allowNew.
func (s *Session) registerManaged(req *rpc.Request) {
	var token, name, password, fullname string
	if err := req.Decode(&token, &name, &password, &fullname); err != nil {
		req.Fail(err)
		return
	}
	gt, b, err := s.lookupToken(token)
	if err != nil {
		req.Fail(err)
		return
	}
	if !b.allowNew {
		req.Fail(fmt.Errorf("%w: game does not accept new players", model.ErrInvalidCapability))
		return
	}

	ctx, cancel := s.svc.storeContext()
	defer cancel()
	game := b.game
	player := model.ManagedPlayer{User: game.User, Game: game.Name, Name: name, Fullname: fullname}
	if err := s.svc.store.AddManagedPlayer(ctx, player, &password); err != nil {
		req.Fail(err)
		return
	}
	s.logger.Info("managed player registered",
		zap.String("user", game.User), zap.String("game", game.Name), zap.String("player", name))
	s.relay(req, token, gt, model.Identity{
		Name:     name,
		Fullname: fullname,
		Managed:  name,
		User:     game.User,
		Game:     game.Name,
	})
}

// relay reports a managed login to the game that owns the provider token.
// The visitor is answered once the game has accepted it.
func (s *Session) relay(req *rpc.Request, token string, gt *gameToken, identity model.Identity) {
	svc := s.svc
	svc.dropToken(token)

	id := svc.id()
	svc.logins[id] = &managedLogin{
		game:     gt.game,
		user:     identity.User,
		name:     identity.Managed,
		gameName: identity.Game,
	}
	gt.game.logins[id] = true

	game := proxy.NewGame(gt.game.peer, id)
	err := game.SetupConnectPlayer(gt.pending, identity.Managed, identity.Fullname, func(err error) {
		if err != nil {
			svc.dropLogin(id)
			req.Fail(err)
			return
		}
		req.Reply(identity)
	})
	if err != nil {
		svc.dropLogin(id)
		req.Fail(err)
	}
}

func (s *Session) loginUser(req *rpc.Request) {
	var name, password string
	if err := req.Decode(&name, &password); err != nil {
		req.Fail(err)
		return
	}

	ctx, cancel := s.svc.storeContext()
	defer cancel()
	var identity *model.Identity
	err := s.svc.guard(ctx, "user", throttle.Key("user", name), func() error {
		var err error
		identity, err = s.svc.store.AuthenticateUser(ctx, name, password)
		return err
	})
	if err != nil {
		req.Fail(err)
		return
	}
	s.user = identity
	s.logger.Info("user logged in", zap.String("user", name))
	req.Reply(identity)
}

// connectGame dials gameURL with the visitor's token so the game can
// resolve it to the chosen remote player. It answers with the context id
// the game will use for the player's storage.
func (s *Session) connectGame(req *rpc.Request) {
	var gameURL, token, name string
	if err := req.Decode(&gameURL, &token, &name); err != nil {
		req.Fail(err)
		return
	}
	if s.user == nil {
		req.Fail(model.ErrNotAuthenticated)
		return
	}
	target, err := url.Parse(gameURL)
	if err != nil || (target.Scheme != "ws" && target.Scheme != "wss") {
		req.Fail(fmt.Errorf("%w: game url %q", model.ErrInvalidIdentifier, gameURL))
		return
	}

	ctx, cancel := s.svc.storeContext()
	player, err := s.remotePlayer(ctx, gameURL, name)
	cancel()
	if err != nil {
		req.Fail(err)
		return
	}

	uid := s.svc.id()
	display := player.Fullname
	if display == "" {
		display = player.Name
	}
	q := target.Query()
	q.Set("token", token)
	q.Set("uid", strconv.Itoa(uid))
	q.Set("name", display)
	target.RawQuery = q.Encode()

	scope := model.ContainerScope(s.user.Name, player.Containers[0])
	s.dialGame(target.String(), uid, scope, req)
}

// remotePlayer finds the player the user connects as, creating it on first
// use. An empty name selects the default player for gameURL.
func (s *Session) remotePlayer(ctx context.Context, gameURL, name string) (*model.RemotePlayer, error) {
	user := s.user.Name
	var (
		player *model.RemotePlayer
		err    error
	)
	if name == "" {
		player, err = s.svc.store.DefaultRemotePlayer(ctx, user, gameURL)
	} else {
		player, err = s.svc.store.GetRemotePlayer(ctx, user, gameURL, name)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return player, err
	}

	created := model.RemotePlayer{
		User:      user,
		URL:       gameURL,
		Name:      name,
		Fullname:  s.user.Fullname,
		IsDefault: name == "",
	}
	if created.Name == "" {
		created.Name = user
	}
	if err := s.svc.store.AddRemotePlayer(ctx, created); err != nil {
		return nil, err
	}
	s.logger.Info("remote player created",
		zap.String("user", user), zap.String("url", gameURL), zap.String("player", created.Name))
	return s.svc.store.GetRemotePlayer(ctx, user, gameURL, created.Name)
}

// dialGame connects off the loop and finishes on it
func (s *Session) dialGame(target string, uid int, scope model.Scope, req *rpc.Request) {
	svc := s.svc
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), svc.cfg.DialTimeout)
		defer cancel()
		link, err := svc.dial(ctx, target)
		posted := svc.loop.Post(func() {
			if err != nil {
				s.logger.Warn("dialling game failed", zap.Error(err))
				req.Fail(err)
				return
			}
			handoff := svc.Accept(link)
			handoff.channels[uid] = &binding{scope: scope}
			link.Start(handoff)
			req.Reply(uid)
		})
		if !posted && err == nil {
			_ = link.Close()
		}
	}()
}
