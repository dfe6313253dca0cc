// Package realtime maintains the single Socket.IO connection to the room
// server: connection state, room joins, outbound events and inbound event
// fan-out.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/metrics"
	"github.com/matheus3301/roomchat/internal/status"
)

const (
	// readLimit bounds a single inbound frame.
	readLimit = 1 << 20
	// writeTimeout bounds a single outbound frame.
	writeTimeout = 10 * time.Second
)

var errServerClosed = errors.New("server closed the connection")

// Conn abstracts the WebSocket connection so the channel can be tested
// without a real server. *websocket.Conn satisfies this interface.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// Dialer opens a WebSocket to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer dials with github.com/coder/websocket.
func WebsocketDialer(ctx context.Context, u string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, u, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures the dial and reconnect policy.
type Options struct {
	// URL is the server base, e.g. https://chat.example.com.
	URL string
	// ReconnectAttempts is how many retries follow a failed dial or a drop.
	ReconnectAttempts int
	// ReconnectDelay is the fixed wait between attempts.
	ReconnectDelay time.Duration
	// ConnectTimeout bounds dial plus handshake.
	ConnectTimeout time.Duration
}

// DefaultOptions mirrors the room server client defaults.
func DefaultOptions(serverURL string) Options {
	return Options{
		URL:               serverURL,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		ConnectTimeout:    20 * time.Second,
	}
}

// Channel is the process-wide realtime connection. All network I/O runs on
// its own goroutine; results reach callers only through Subscribe.
type Channel struct {
	opts    Options
	dial    Dialer
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	conn     Conn
	identity string
}

// New creates a disconnected channel. A nil dial uses WebsocketDialer.
func New(opts Options, dial Dialer, b *bus.Bus, logger *zap.Logger) *Channel {
	if dial == nil {
		dial = WebsocketDialer
	}
	return &Channel{
		opts:    opts,
		dial:    dial,
		bus:     b,
		machine: status.NewMachine(b),
		logger:  logger.Named("realtime"),
	}
}

// State returns the current connection state.
func (c *Channel) State() status.State {
	return c.machine.Current()
}

// IsConnected reports whether the channel is Connected.
func (c *Channel) IsConnected() bool {
	return c.machine.Is(status.Connected)
}

// Identity returns the username of the current or last connection.
func (c *Channel) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Subscribe returns a stream of channel events. Delivery never blocks the
// channel; a subscriber that falls behind by more than buf events misses
// the overflow.
func (c *Channel) Subscribe(buf int) (<-chan Event, func()) {
	src, unsub := c.bus.Subscribe("realtime.", buf)
	out := make(chan Event, buf)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case evt := <-src:
				e, ok := evt.Payload.(Event)
				if !ok {
					continue
				}
				select {
				case out <- e:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}

// Connect starts the dial loop for identity. It is a no-op while a loop is
// already running, which covers Connecting, Connected and retrying.
func (c *Channel) Connect(identity string) {
	c.mu.Lock()
	if c.cancel != nil {
		running := c.identity
		c.mu.Unlock()
		if running != identity {
			c.logger.Warn("connect ignored, channel busy with another identity",
				zap.String("running", running), zap.String("requested", identity))
		}
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.identity = identity
	c.mu.Unlock()

	go c.run(ctx, gen, identity)
}

// Disconnect tears down the connection and the dial loop. It always leaves
// the channel Disconnected and may be called any number of times.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.gen++
	reset := c.machine.Reset()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		ctx, done := context.WithTimeout(context.Background(), time.Second)
		_ = conn.Write(ctx, websocket.MessageText, []byte(disconnectFrame))
		done()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if reset {
		c.record(status.State{Kind: status.Disconnected})
	}
}

// JoinRoom asks the server to add this connection to a room. Membership is
// only confirmed by a later EventJoined.
func (c *Channel) JoinRoom(ctx context.Context, roomID string) error {
	return c.emit(ctx, "join room", evJoinRoom, joinRoomPayload{RoomID: roomID})
}

// Send publishes a message to a room. The server acknowledges by echoing a
// new_message event; Send itself never waits for it.
func (c *Channel) Send(ctx context.Context, roomID, text string) error {
	return c.emit(ctx, "send message", evSendMessage, sendMessagePayload{RoomID: roomID, Text: text})
}

func (c *Channel) emit(ctx context.Context, op, name string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !c.IsConnected() {
		err := fault.New(fault.Transport, op, "not connected")
		c.publish(Event{Kind: EventError, Err: err.Error()})
		return err
	}

	data, err := encodeEvent(name, payload)
	if err != nil {
		return fault.Wrap(fault.Parse, op, err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		ferr := fault.Wrap(fault.Transport, op, err)
		c.publish(Event{Kind: EventError, Err: ferr.Error()})
		return ferr
	}
	c.logger.Debug("event sent", zap.String("event", name))
	return nil
}

// run is the dial loop. The first connection gets one try plus the retry
// budget; every drop after a successful connection gets the retry budget.
func (c *Channel) run(ctx context.Context, gen uint64, identity string) {
	defer c.finish(gen)

	budget := 1 + c.opts.ReconnectAttempts
	failures := 0
	for {
		if !c.transition(gen, status.State{Kind: status.Connecting}) {
			return
		}

		conn, hb, err := c.open(ctx, identity)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "cancelled")
			}
			return
		}
		if err != nil {
			failures++
			reason := err.Error()
			c.logger.Warn("connect failed", zap.Int("attempt", failures), zap.Int("budget", budget), zap.Error(err))
			if !c.transition(gen, status.State{Kind: status.Error, Reason: reason}) {
				return
			}
			c.publish(Event{Kind: EventError, Err: reason})
			if failures >= budget {
				c.logger.Warn("reconnect attempts exhausted")
				c.retire(gen, status.State{Kind: status.Disconnected})
				return
			}
			if !sleep(ctx, c.opts.ReconnectDelay) {
				return
			}
			continue
		}

		if !c.attach(gen, conn) {
			_ = conn.Close(websocket.StatusNormalClosure, "superseded")
			return
		}
		c.logger.Info("connected", zap.String("identity", identity))

		err = c.readLoop(ctx, conn, hb)
		c.detach(gen)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection lost", zap.Error(err))
		if c.opts.ReconnectAttempts <= 0 {
			c.retire(gen, status.State{Kind: status.Disconnected})
			return
		}
		if !c.transition(gen, status.State{Kind: status.Disconnected}) {
			return
		}

		budget = c.opts.ReconnectAttempts
		failures = 0
		if !sleep(ctx, c.opts.ReconnectDelay) {
			return
		}
	}
}

// retire moves to the loop's final state and releases the loop under one
// lock, so a Connect that sees the final state always starts a new loop.
func (c *Channel) retire(gen uint64, to status.State) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	err := c.machine.Transition(to)
	c.cancel = nil
	c.conn = nil
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("state transition rejected", zap.Error(err))
		return
	}
	c.record(to)
}

func (c *Channel) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.cancel = nil
		c.conn = nil
	}
}

// transition moves the state machine if gen is still the live loop. It
// reports false once the loop has been superseded by Disconnect.
func (c *Channel) transition(gen uint64, to status.State) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	err := c.machine.Transition(to)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("state transition rejected", zap.Error(err))
		return true
	}
	c.record(to)
	return true
}

func (c *Channel) attach(gen uint64, conn Conn) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	err := c.machine.Transition(status.State{Kind: status.Connected})
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("state transition rejected", zap.Error(err))
		return true
	}
	c.record(status.State{Kind: status.Connected})
	return true
}

func (c *Channel) detach(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.conn = nil
	}
}

func (c *Channel) record(s status.State) {
	metrics.ChannelTransitions().WithLabelValues(string(s.Kind)).Inc()
	c.publish(Event{Kind: EventState, State: s})
}

func (c *Channel) publish(e Event) {
	var kind string
	switch e.Kind {
	case EventState:
		kind = bus.KindChannelState
	case EventJoined:
		kind = bus.KindChannelJoined
	case EventMessage:
		kind = bus.KindChannelMessage
	case EventError:
		kind = bus.KindChannelError
	}
	c.bus.Emit(kind, e)
}

// open dials and completes the Engine.IO and Socket.IO handshakes within
// ConnectTimeout.
func (c *Channel) open(ctx context.Context, identity string) (Conn, heartbeat, error) {
	endpoint, err := c.endpoint(identity)
	if err != nil {
		return nil, heartbeat{}, err
	}

	dctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.dial(dctx, endpoint)
	if err != nil {
		return nil, heartbeat{}, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	hb, err := handshake(dctx, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, heartbeat{}, err
	}
	return conn, hb, nil
}

func (c *Channel) endpoint(identity string) (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
	q := url.Values{}
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	q.Set("username", identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// handshake waits for the Engine.IO open packet, requests the default
// namespace and waits for its acknowledgment.
func handshake(ctx context.Context, conn Conn) (heartbeat, error) {
	var hb heartbeat
	opened := false
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return hb, fmt.Errorf("handshake read: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		f, err := decodeFrame(data)
		if err != nil {
			return hb, fault.Wrap(fault.Parse, "handshake", err)
		}

		switch f.kind {
		case frameOpen:
			hb = parseOpen(f.body)
			opened = true
			if err := conn.Write(ctx, websocket.MessageText, []byte(connectFrame)); err != nil {
				return hb, fmt.Errorf("handshake write: %w", err)
			}
		case framePing:
			if err := conn.Write(ctx, websocket.MessageText, []byte(pongFrame)); err != nil {
				return hb, fmt.Errorf("handshake pong: %w", err)
			}
		case frameConnect:
			if !opened {
				return hb, errors.New("connect ack before open")
			}
			return hb, nil
		case frameConnectError:
			return hb, fmt.Errorf("connect refused: %s", errorText(parseBody(f.body)))
		case frameClose, frameDisconnect:
			return hb, errServerClosed
		case framePong, frameNoop, frameEvent, frameOther:
		}
	}
}

// readLoop consumes frames until the connection drops. Each read is bounded
// by the server's ping interval plus timeout, so a silent server counts as
// a drop.
func (c *Channel) readLoop(ctx context.Context, conn Conn, hb heartbeat) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, hb.interval+hb.timeout)
		typ, data, err := conn.Read(rctx)
		cancel()
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		f, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(fault.Wrap(fault.Parse, "decode frame", err)))
			continue
		}

		switch f.kind {
		case framePing:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, []byte(pongFrame))
			wcancel()
			if err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		case frameEvent:
			c.dispatch(f.body)
		case frameConnectError:
			c.publish(Event{Kind: EventError, Err: errorText(parseBody(f.body))})
		case frameClose, frameDisconnect:
			return errServerClosed
		case frameOpen, framePong, frameNoop, frameConnect, frameOther:
		}
	}
}

func (c *Channel) dispatch(body []byte) {
	evt, ok, err := parseEvent(body)
	if err != nil {
		c.logger.Warn("dropping malformed event", zap.String("event", eventName(body)), zap.Error(err))
		return
	}
	if !ok {
		c.logger.Debug("ignoring event", zap.String("event", eventName(body)))
		return
	}
	c.publish(evt)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
