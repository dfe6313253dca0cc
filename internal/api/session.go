package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/connectivity"
	"github.com/matheus3301/roomchat/internal/conversation"
	"github.com/matheus3301/roomchat/internal/outbox"
	"github.com/matheus3301/roomchat/internal/realtime"
	"github.com/matheus3301/roomchat/internal/rooms"
	"github.com/matheus3301/roomchat/internal/status"
	"github.com/matheus3301/roomchat/internal/store"
	intsync "github.com/matheus3301/roomchat/internal/sync"
)

// Channel is the part of the realtime channel the session service drives.
type Channel interface {
	State() status.State
	Connect(identity string)
	Disconnect()
}

// SessionConfig wires a SessionService.
type SessionConfig struct {
	Profile   string
	ServerURL string
	Channel   Channel
	Monitor   connectivity.Monitor
	Engine    *intsync.Engine
	DB        *store.DB
	Rooms     *rooms.Directory
	Bus       *bus.Bus
	// SaveUsername persists a verified login; nil skips persistence.
	SaveUsername func(username string) error
	Logger       *zap.Logger
}

// SessionService reports daemon status, logs in and streams bus events.
type SessionService struct {
	cfg       SessionConfig
	startedAt time.Time
	logger    *zap.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(cfg SessionConfig) *SessionService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{cfg: cfg, startedAt: time.Now(), logger: logger.Named("api")}
}

func (s *SessionService) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	resp := &StatusResponse{
		Profile:   s.cfg.Profile,
		ServerURL: s.cfg.ServerURL,
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
	}
	if s.cfg.Channel != nil {
		st := s.cfg.Channel.State()
		resp.State = string(st.Kind)
		resp.StateReason = st.Reason
	}
	if s.cfg.Monitor != nil {
		resp.Online = s.cfg.Monitor.Online()
	}
	if s.cfg.Engine != nil {
		resp.Username = s.cfg.Engine.User()
		resp.CurrentChat = s.cfg.Engine.Current()
	}

	// Populate counts from store.
	if s.cfg.DB != nil {
		if n, err := s.cfg.DB.ChatCount(); err == nil {
			resp.ChatCount = n
		}
		if n, err := s.cfg.DB.MessageCount(); err == nil {
			resp.MessageCount = n
		}
	}
	return resp, nil
}

// Login verifies the username with the server, persists it and reconnects
// the channel under the new identity.
func (s *SessionService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.cfg.Rooms.Login(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if s.cfg.SaveUsername != nil {
		if err := s.cfg.SaveUsername(user.Username); err != nil {
			s.logger.Warn("persist username failed", zap.Error(err))
		}
	}
	if s.cfg.Channel != nil {
		s.cfg.Channel.Disconnect()
		s.cfg.Channel.Connect(user.Username)
	}
	return &LoginResponse{UserID: user.ID, Username: user.Username}, nil
}

// WatchEvents streams bus events until the client goes away.
func (s *SessionService) WatchEvents(req *WatchEventsRequest, stream grpc.ServerStreamingServer[Event]) error {
	events, unsub := s.cfg.Bus.Subscribe(req.Prefix, 256)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			out, ok := eventFromBus(evt)
			if !ok {
				continue
			}
			if err := stream.Send(&out); err != nil {
				return err
			}
		}
	}
}

// eventFromBus flattens known payloads. Channel state events are dropped in
// favour of status.changed, which carries the same transition.
func eventFromBus(evt bus.Event) (Event, bool) {
	out := Event{
		ID:     uuid.NewString(),
		Kind:   evt.Kind,
		TimeMs: evt.Timestamp.UnixMilli(),
	}
	switch p := evt.Payload.(type) {
	case status.Change:
		out.State = string(p.To.Kind)
		out.Text = p.To.Reason
	case realtime.Event:
		switch p.Kind {
		case realtime.EventState:
			return Event{}, false
		case realtime.EventJoined:
			out.ChatID = p.RoomID
		case realtime.EventMessage:
			out.ChatID = p.Message.RoomID
			out.Text = p.Message.Text
		case realtime.EventError:
			out.Text = p.Err
		}
	case connectivity.Change:
		out.Online = p.Online
	case conversation.Notice:
		out.ChatID = p.ChatID
		out.Notice = p.Kind.String()
		out.Text = p.Text
	case intsync.IngestResult:
		out.ChatID = p.ChatID
		out.Text = p.Outcome.String()
	case intsync.MergeResult:
		out.ChatID = p.ChatID
	case outbox.FlushResult:
		out.ChatID = p.ChatID
	case string:
		out.ChatID = p
	}
	return out, true
}

// SessionServer is the handler type for the Session service.
type SessionServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	WatchEvents(*WatchEventsRequest, grpc.ServerStreamingServer[Event]) error
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "Status", SessionServer.Status),
		unary(SessionServiceName, "Login", SessionServer.Login),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchEvents", SessionServer.WatchEvents),
	},
	Metadata: "roomchat/v1/session",
}

// RegisterSessionServer registers srv on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&sessionServiceDesc, srv)
}
