// Package conversation drives one open chat: it joins the room when the
// channel comes up, flushes the outbox once joined, ingests the room's
// messages and syncs history once per open.
package conversation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/connectivity"
	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/outbox"
	"github.com/matheus3301/roomchat/internal/realtime"
	"github.com/matheus3301/roomchat/internal/status"
	"github.com/matheus3301/roomchat/internal/store"
	intsync "github.com/matheus3301/roomchat/internal/sync"
)

// Channel is the part of *realtime.Channel a conversation drives.
type Channel interface {
	Connect(identity string)
	IsConnected() bool
	JoinRoom(ctx context.Context, roomID string) error
	Send(ctx context.Context, roomID, text string) error
	Subscribe(buf int) (<-chan realtime.Event, func())
}

// ErrClosed is returned by operations on a conversation that has been
// closed.
var ErrClosed = errors.New("conversation closed")

// SendResult reports what happened to a sent draft. Queued means the
// message is stored but waits for the channel; Reason says why.
type SendResult struct {
	Message *store.Message
	Queued  bool
	Reason  error
}

// deps are shared by every conversation of a manager.
type deps struct {
	db           *store.DB
	engine       *intsync.Engine
	channel      Channel
	monitor      connectivity.Monitor
	history      intsync.HistorySource
	flusher      *outbox.Flusher
	bus          *bus.Bus
	historyLimit int
	logger       *zap.Logger
}

// Conversation runs a single event loop for one chat. Every handler runs
// on that loop, so the flags below need no locking.
type Conversation struct {
	id     string
	d      *deps
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan func()
	done   chan struct{}

	events       <-chan realtime.Event
	network      <-chan bool
	unsubEvents  func()
	unsubNetwork func()

	roomJoined         bool
	offlineNoticeShown bool
	synced             bool
	syncing            bool
	flushAfterSync     bool
}

func newConversation(id string, d *deps) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conversation{
		id:     id,
		d:      d,
		logger: d.logger.With(zap.String("chat_id", id)),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan func()),
		done:   make(chan struct{}),
	}
}

// ID returns the chat id.
func (c *Conversation) ID() string { return c.id }

// subscribe attaches the conversation to the channel and the monitor.
// Events that arrive before run are buffered.
func (c *Conversation) subscribe() {
	c.events, c.unsubEvents = c.d.channel.Subscribe(64)
	c.network, c.unsubNetwork = c.d.monitor.Subscribe(8)
}

// unsubscribe detaches the conversation from the channel and the monitor.
func (c *Conversation) unsubscribe() {
	c.unsubNetwork()
	c.unsubEvents()
}

func (c *Conversation) run() {
	events, network := c.events, c.network

	go func() {
		defer close(c.done)
		defer c.unsubscribe()

		if c.d.monitor.Online() {
			c.startSync()
		}
		c.connectOrJoin()

		for {
			select {
			case <-c.ctx.Done():
				c.drain(events)
				return
			case fn := <-c.tasks:
				fn()
			case e, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				c.handleChannel(e)
			case online, ok := <-network:
				if !ok {
					network = nil
					continue
				}
				c.handleNetwork(online)
			}
		}
	}()
}

// close stops the loop and waits for it to exit.
func (c *Conversation) close() {
	c.cancel()
	<-c.done
}

func (c *Conversation) current() bool {
	return c.d.engine.Current() == c.id
}

func (c *Conversation) connectOrJoin() {
	if !c.d.channel.IsConnected() {
		c.logger.Debug("channel down, connecting")
		c.d.channel.Connect(c.d.engine.User())
		return
	}
	c.join()
}

func (c *Conversation) join() {
	if err := c.d.channel.JoinRoom(c.ctx, c.id); err != nil {
		c.logger.Warn("join room failed", zap.Error(err))
	}
}

func (c *Conversation) handleChannel(e realtime.Event) {
	switch e.Kind {
	case realtime.EventState:
		c.handleState(e.State)
	case realtime.EventJoined:
		if e.RoomID != c.id {
			return
		}
		c.roomJoined = true
		c.logger.Info("room joined")
		if c.syncing {
			c.flushAfterSync = true
			return
		}
		c.flush()
	case realtime.EventMessage:
		if e.Message.RoomID != c.id {
			return
		}
		c.ingest(e.Message)
	case realtime.EventError:
		if c.d.monitor.Online() {
			c.notify(NoticeError, e.Err)
		}
	}
}

// ingest stores a message of this room. The conversation owns its room's
// messages until its loop exits, even after the selector has moved on; the
// engine may ingest the same message then, which is a duplicate. Closing the
// conversation does not abort the write.
func (c *Conversation) ingest(m realtime.InboundMessage) {
	if _, err := c.d.engine.IngestInbound(context.WithoutCancel(c.ctx), m, c.d.engine.User()); err != nil {
		c.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", m.ID))
	}
}

// drain ingests room messages already buffered when the loop stops.
func (c *Conversation) drain(events <-chan realtime.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Kind == realtime.EventMessage && e.Message.RoomID == c.id {
				c.ingest(e.Message)
			}
		default:
			return
		}
	}
}

func (c *Conversation) handleState(s status.State) {
	switch s.Kind {
	case status.Connected:
		c.roomJoined = false
		c.flushAfterSync = false
		c.join()
	case status.Disconnected:
		c.roomJoined = false
		c.flushAfterSync = false
	case status.Error:
		c.roomJoined = false
		c.flushAfterSync = false
		if c.d.monitor.Online() {
			c.notify(NoticeError, s.Reason)
		}
	case status.Connecting:
	}
}

func (c *Conversation) handleNetwork(online bool) {
	if !online {
		return
	}
	c.offlineNoticeShown = false
	if !c.d.channel.IsConnected() {
		c.logger.Info("back online, reconnecting")
		c.d.channel.Connect(c.d.engine.User())
	}
	c.startSync()
}

func (c *Conversation) ready() bool {
	return c.d.channel.IsConnected() && c.roomJoined
}

func (c *Conversation) flush() {
	if !c.current() {
		return
	}
	if _, err := c.d.flusher.Flush(c.ctx, c.id, c.ready); err != nil {
		c.logger.Warn("outbox flush incomplete", zap.Error(err))
	}
}

// startSync fetches history off the loop. A failure leaves synced false so
// the next online signal tries again. A join that lands while the fetch is
// in flight defers its flush until the merge is done, so rows the server
// already has are adopted instead of sent twice.
func (c *Conversation) startSync() {
	if c.synced || c.syncing || !c.current() {
		return
	}
	c.syncing = true
	user := c.d.engine.User()

	go func() {
		res, err := c.d.engine.SyncHistory(c.ctx, c.d.history, c.id, c.d.historyLimit, user)
		c.post(func() {
			c.syncing = false
			if err != nil {
				c.logger.Warn("history sync failed", zap.Error(err))
			} else {
				c.synced = true
				c.logger.Debug("history synced", zap.Int("inserted", res.Inserted), zap.Int("adopted", res.Adopted))
			}
			if c.flushAfterSync {
				c.flushAfterSync = false
				c.flush()
			}
		})
	}()
}

// post queues fn on the loop without waiting for it.
func (c *Conversation) post(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.ctx.Done():
	}
}

// do runs fn on the loop and waits for it.
func (c *Conversation) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.tasks <- task:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (c *Conversation) notify(kind NoticeKind, text string) {
	c.d.bus.Emit(bus.KindNotice, Notice{Kind: kind, ChatID: c.id, Text: text})
}

// Send queues text and writes it to the channel when online, connected and
// joined. Otherwise the message stays queued, the offline notice is shown
// once, and the result carries the transport fault as its Reason.
func (c *Conversation) Send(ctx context.Context, text string) (SendResult, error) {
	var (
		res SendResult
		err error
	)
	if derr := c.do(ctx, func() {
		if !c.current() {
			err = fault.New(fault.Validation, "send message", "chat is not open")
			return
		}
		var msg *store.Message
		msg, err = c.d.engine.QueueOutbound(c.ctx, c.id, c.d.engine.User(), text)
		if err != nil {
			return
		}
		res.Message = msg

		if c.d.monitor.Online() && c.ready() {
			res.Reason = c.d.channel.Send(c.ctx, c.id, msg.Content)
			if res.Reason == nil {
				return
			}
		} else {
			res.Reason = fault.New(fault.Transport, "send message", "not connected or not joined")
		}

		res.Queued = true
		if !c.offlineNoticeShown {
			c.offlineNoticeShown = true
			c.notify(NoticeOffline, offlineText)
		}
		c.logger.Debug("message queued for later", zap.String("msg_id", msg.ID))
	}); derr != nil {
		return SendResult{}, derr
	}
	return res, err
}

// Retry resends one message. It fails unless the channel is connected and
// the room joined.
func (c *Conversation) Retry(ctx context.Context, messageID string) error {
	var err error
	if derr := c.do(ctx, func() {
		if !c.ready() {
			err = fault.New(fault.Transport, "retry message", notConnectedText)
			c.notify(NoticeError, notConnectedText)
			return
		}
		err = c.d.flusher.Resend(c.ctx, c.id, messageID)
	}); derr != nil {
		return derr
	}
	return err
}

// Joined reports whether the room join has been confirmed.
func (c *Conversation) Joined(ctx context.Context) (bool, error) {
	var joined bool
	err := c.do(ctx, func() { joined = c.roomJoined })
	return joined, err
}

// Synced reports whether history has been merged during this open.
func (c *Conversation) Synced(ctx context.Context) (bool, error) {
	var synced bool
	err := c.do(ctx, func() { synced = c.synced })
	return synced, err
}
