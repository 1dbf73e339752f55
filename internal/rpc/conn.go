package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1 << 20

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// ReplyFunc receives the result of a call. It runs on the loop.
type ReplyFunc func(result json.RawMessage, err error)

// Peer is the other side of a connection
type Peer interface {
	// ID identifies the connection in logs
	ID() string
	// Event sends a fire-and-forget notification
	Event(method string, args ...any) error
	// Call sends a request; reply runs on the loop once the answer arrives
	// or the connection closes. A nil reply discards the answer.
	Call(method string, args []any, reply ReplyFunc) error
	// Close closes the connection; the handler's Closed hook runs later on
	// the loop
	Close() error
}

// Handler serves inbound traffic of a connection. Both methods run on the
// loop.
type Handler interface {
	Serve(req *Request)
	Closed()
}

// Request is an inbound call or event
type Request struct {
	Method string
	Args   []json.RawMessage

	id      uint64
	event   bool
	conn    *Conn
	replied bool

	// Set for requests built by NewRequest instead of read off a Conn.
	peer   Peer
	answer ReplyFunc
}

// NewRequest builds a request that did not arrive on a Conn. Its answer is
// passed to reply; a nil reply makes it an event.
func NewRequest(peer Peer, method string, args []any, reply ReplyFunc) (*Request, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method: method,
		Args:   encoded,
		event:  reply == nil,
		peer:   peer,
		answer: reply,
	}, nil
}

// IsEvent reports whether no reply is expected
func (r *Request) IsEvent() bool {
	return r.event
}

// Peer returns the connection the request arrived on
func (r *Request) Peer() Peer {
	if r.conn == nil {
		return r.peer
	}
	return r.conn
}

// Decode unmarshals the arguments positionally into dst
func (r *Request) Decode(dst ...any) error {
	return DecodeArgs(r.Args, dst...)
}

// Reply answers the call with result. Only the first answer is sent.
func (r *Request) Reply(result any) {
	if r.event || r.replied {
		return
	}
	r.replied = true
	data, err := json.Marshal(result)
	if err != nil {
		r.logger().Error("encoding reply", zap.String("method", r.Method), zap.Error(err))
		r.send(Message{Type: TypeError, ID: r.id, Code: CodeInternal, Error: "internal error"})
		return
	}
	r.send(Message{Type: TypeReturn, ID: r.id, Result: data})
}

// Fail answers the call with err
func (r *Request) Fail(err error) {
	if r.event {
		r.logger().Debug("event failed", zap.String("method", r.Method), zap.Error(err))
		return
	}
	if r.replied {
		return
	}
	r.replied = true
	code := CodeOf(err)
	if code == CodeInternal {
		r.logger().Error("call failed", zap.String("method", r.Method), zap.Error(err))
	}
	r.send(Message{Type: TypeError, ID: r.id, Code: code, Error: publicMessage(err)})
}

func (r *Request) send(msg Message) {
	if r.conn != nil {
		r.conn.enqueue(msg)
		return
	}
	if msg.Type == TypeError {
		r.answer(nil, &RemoteError{Code: msg.Code, Message: msg.Error})
		return
	}
	r.answer(msg.Result, nil)
}

func (r *Request) logger() *zap.Logger {
	if r.conn != nil {
		return r.conn.logger
	}
	return zap.NewNop()
}

// Conn is a websocket connection speaking the message protocol
type Conn struct {
	id     string
	ws     *websocket.Conn
	loop   *Loop
	logger *zap.Logger

	send      chan []byte
	closeOnce sync.Once
	stop      chan struct{}

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]ReplyFunc

	// Set by Start; only used on the loop.
	handler Handler
}

// Ensure Conn implements Peer
var _ Peer = (*Conn)(nil)

// NewConn wraps an established websocket. Call Start to begin serving.
func NewConn(ws *websocket.Conn, loop *Loop, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:      id,
		ws:      ws,
		loop:    loop,
		logger:  logger.With(zap.String("conn", id)),
		send:    make(chan []byte, sendBufferSize),
		stop:    make(chan struct{}),
		pending: make(map[uint64]ReplyFunc),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers connect from the game's pages, which may live on any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade turns an HTTP request into a Conn
func Upgrade(w http.ResponseWriter, r *http.Request, loop *Loop, logger *zap.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws, loop, logger), nil
}

// Dial connects to a websocket URL
func Dial(ctx context.Context, url string, loop *Loop, logger *zap.Logger) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(ws, loop, logger), nil
}

// Start launches the pumps. h receives every inbound request.
func (c *Conn) Start(h Handler) {
	c.handler = h
	go c.writePump()
	go c.readPump()
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Event(method string, args ...any) error {
	encoded, err := encodeArgs(args)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return model.ErrConnectionClosed
	}
	c.enqueue(Message{Type: TypeEvent, Method: method, Args: encoded})
	return nil
}

func (c *Conn) Call(method string, args []any, reply ReplyFunc) error {
	encoded, err := encodeArgs(args)
	if err != nil {
		return err
	}
	if reply == nil {
		reply = func(json.RawMessage, error) {}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return model.ErrConnectionClosed
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = reply
	c.mu.Unlock()

	c.enqueue(Message{Type: TypeCall, ID: id, Method: method, Args: encoded})
	return nil
}

func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

// shutdown stops the write pump, which closes the socket and so ends the
// read pump
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Conn) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("encoding message", zap.Error(err))
		return
	}
	select {
	case <-c.stop:
	case c.send <- data:
	default:
		// A peer that cannot keep up would otherwise lose replies.
		c.logger.Warn("send buffer full, closing connection")
		c.shutdown()
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.shutdown()
		c.loop.Post(c.closedOnLoop)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed message, closing connection", zap.Error(err))
			return
		}
		if !c.loop.Post(func() { c.dispatch(msg) }) {
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.shutdown()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.stop:
			c.drain()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes frames queued before the connection was closed
func (c *Conn) drain() {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// dispatch runs on the loop
func (c *Conn) dispatch(msg Message) {
	switch msg.Type {
	case TypeCall, TypeEvent:
		req := &Request{
			Method: msg.Method,
			Args:   msg.Args,
			id:     msg.ID,
			event:  msg.Type == TypeEvent,
			conn:   c,
		}
		if c.IsClosed() {
			return
		}
		c.handler.Serve(req)

	case TypeReturn, TypeError:
		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("reply to unknown call", zap.Uint64("id", msg.ID))
			return
		}
		if msg.Type == TypeError {
			reply(nil, &RemoteError{Code: msg.Code, Message: msg.Error})
			return
		}
		reply(msg.Result, nil)

	default:
		c.logger.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// closedOnLoop fails outstanding calls and notifies the handler
func (c *Conn) closedOnLoop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]ReplyFunc)
	c.mu.Unlock()

	for _, reply := range pending {
		reply(nil, model.ErrConnectionClosed)
	}
	c.logger.Debug("connection closed", zap.Int("outstanding_calls", len(pending)))
	if c.handler != nil {
		c.handler.Closed()
	}
}

// IsClosed reports whether the close notification has run
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once the connection starts shutting down
func (c *Conn) Done() <-chan struct{} {
	return c.stop
}
