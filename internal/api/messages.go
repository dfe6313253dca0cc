package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/matheus3301/roomchat/internal/conversation"
	"github.com/matheus3301/roomchat/internal/store"
)

// MessagesService serves threads and the send path.
type MessagesService struct {
	db      *store.DB
	manager *conversation.Manager
}

// NewMessagesService creates a new messages service.
func NewMessagesService(db *store.DB, m *conversation.Manager) *MessagesService {
	return &MessagesService{db: db, manager: m}
}

func (s *MessagesService) List(_ context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	id, err := chatID(req.ChatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.db.ListMessages(id)
	if err != nil {
		return nil, err
	}
	return &ListMessagesResponse{Messages: messagesFromStore(msgs)}, nil
}

// Send opens the chat if needed and sends text. A message that could not go
// out immediately is still stored and reported as queued.
func (s *MessagesService) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	id, err := chatID(req.ChatID)
	if err != nil {
		return nil, err
	}
	res, err := s.manager.Send(ctx, id, req.Text)
	if err != nil {
		return nil, err
	}
	out := &SendResponse{Queued: res.Queued}
	if res.Message != nil {
		out.Message = messageFromStore(res.Message)
	}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	return out, nil
}

func (s *MessagesService) Retry(ctx context.Context, req *RetryRequest) (*Empty, error) {
	id, err := chatID(req.ChatID)
	if err != nil {
		return nil, err
	}
	if err := s.manager.Retry(ctx, id, req.MessageID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// Watch streams the chat's thread on every change, starting with the
// current one.
func (s *MessagesService) Watch(req *ListMessagesRequest, stream grpc.ServerStreamingServer[ListMessagesResponse]) error {
	id, err := chatID(req.ChatID)
	if err != nil {
		return err
	}
	for msgs := range s.db.WatchMessages(stream.Context(), id) {
		if err := stream.Send(&ListMessagesResponse{Messages: messagesFromStore(msgs)}); err != nil {
			return err
		}
	}
	return nil
}

// MessagesServer is the handler type for the Messages service.
type MessagesServer interface {
	List(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Retry(context.Context, *RetryRequest) (*Empty, error)
	Watch(*ListMessagesRequest, grpc.ServerStreamingServer[ListMessagesResponse]) error
}

var messagesServiceDesc = grpc.ServiceDesc{
	ServiceName: MessagesServiceName,
	HandlerType: (*MessagesServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessagesServiceName, "List", MessagesServer.List),
		unary(MessagesServiceName, "Send", MessagesServer.Send),
		unary(MessagesServiceName, "Retry", MessagesServer.Retry),
	},
	Streams: []grpc.StreamDesc{
		serverStream("Watch", MessagesServer.Watch),
	},
	Metadata: "roomchat/v1/messages",
}

// RegisterMessagesServer registers srv on s.
func RegisterMessagesServer(s grpc.ServiceRegistrar, srv MessagesServer) {
	s.RegisterService(&messagesServiceDesc, srv)
}
