package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"

	"github.com/matheus3301/roomchat/internal/conversation"
	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/rooms"
	"github.com/matheus3301/roomchat/internal/store"
)

// ChatsService serves the chat list and room lifecycle.
type ChatsService struct {
	db      *store.DB
	rooms   *rooms.Directory
	manager *conversation.Manager
}

// NewChatsService creates a new chats service.
func NewChatsService(db *store.DB, dir *rooms.Directory, m *conversation.Manager) *ChatsService {
	return &ChatsService{db: db, rooms: dir, manager: m}
}

func (s *ChatsService) List(_ context.Context, _ *ListChatsRequest) (*ListChatsResponse, error) {
	chats, err := s.db.ListChats()
	if err != nil {
		return nil, err
	}
	return &ListChatsResponse{Chats: chatsFromStore(chats)}, nil
}

func (s *ChatsService) Create(ctx context.Context, _ *CreateChatRequest) (*ChatResponse, error) {
	c, err := s.rooms.Create(ctx)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Chat: chatFromStore(c)}, nil
}

func (s *ChatsService) Delete(ctx context.Context, req *ChatRequest) (*Empty, error) {
	id, err := chatID(req.ChatID)
	if err != nil {
		return nil, err
	}
	if err := s.rooms.Delete(ctx, id); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// Open makes the chat current and returns it with its unread count reset.
func (s *ChatsService) Open(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	id, err := chatID(req.ChatID)
	if err != nil {
		return nil, err
	}
	if _, err := s.manager.Open(id); err != nil {
		return nil, err
	}
	c, err := s.db.GetChat(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fault.New(fault.Validation, "open chat", "chat not found")
	}
	return &ChatResponse{Chat: chatFromStore(c)}, nil
}

func (s *ChatsService) Close(_ context.Context, _ *Empty) (*Empty, error) {
	s.manager.Close()
	return &Empty{}, nil
}

// Watch streams the full chat list on every change, starting with the
// current one.
func (s *ChatsService) Watch(_ *WatchChatsRequest, stream grpc.ServerStreamingServer[ListChatsResponse]) error {
	ctx := stream.Context()
	for chats := range s.db.WatchChats(ctx) {
		if err := stream.Send(&ListChatsResponse{Chats: chatsFromStore(chats)}); err != nil {
			return err
		}
	}
	return nil
}

func chatID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fault.New(fault.Validation, "chat", "chat id is empty")
	}
	return id, nil
}

// ChatsServer is the handler type for the Chats service.
type ChatsServer interface {
	List(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	Create(context.Context, *CreateChatRequest) (*ChatResponse, error)
	Delete(context.Context, *ChatRequest) (*Empty, error)
	Open(context.Context, *ChatRequest) (*ChatResponse, error)
	Close(context.Context, *Empty) (*Empty, error)
	Watch(*WatchChatsRequest, grpc.ServerStreamingServer[ListChatsResponse]) error
}

var chatsServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatsServiceName,
	HandlerType: (*ChatsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatsServiceName, "List", ChatsServer.List),
		unary(ChatsServiceName, "Create", ChatsServer.Create),
		unary(ChatsServiceName, "Delete", ChatsServer.Delete),
		unary(ChatsServiceName, "Open", ChatsServer.Open),
		unary(ChatsServiceName, "Close", ChatsServer.Close),
	},
	Streams: []grpc.StreamDesc{
		serverStream("Watch", ChatsServer.Watch),
	},
	Metadata: "roomchat/v1/chats",
}

// RegisterChatsServer registers srv on s.
func RegisterChatsServer(s grpc.ServiceRegistrar, srv ChatsServer) {
	s.RegisterService(&chatsServiceDesc, srv)
}
