package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client talks to a running daemon over its unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects lazily to the daemon socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Req, Resp any](ctx context.Context, c *Client, service, method string, in *Req) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, fullMethod(service, method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func watch[Req, Resp any](ctx context.Context, c *Client, desc *grpc.ServiceDesc, stream int, in *Req) (grpc.ServerStreamingClient[Resp], error) {
	sd := &desc.Streams[stream]
	cs, err := c.conn.NewStream(ctx, sd, fullMethod(desc.ServiceName, sd.StreamName))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Resp]{ClientStream: cs}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusRequest, StatusResponse](ctx, c, SessionServiceName, "Status", &StatusRequest{})
}

func (c *Client) Login(ctx context.Context, username string) (*LoginResponse, error) {
	return invoke[LoginRequest, LoginResponse](ctx, c, SessionServiceName, "Login", &LoginRequest{Username: username})
}

// WatchEvents streams daemon events whose kind starts with prefix.
func (c *Client) WatchEvents(ctx context.Context, prefix string) (grpc.ServerStreamingClient[Event], error) {
	return watch[WatchEventsRequest, Event](ctx, c, &sessionServiceDesc, 0, &WatchEventsRequest{Prefix: prefix})
}

func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	resp, err := invoke[ListChatsRequest, ListChatsResponse](ctx, c, ChatsServiceName, "List", &ListChatsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

func (c *Client) CreateChat(ctx context.Context) (*Chat, error) {
	resp, err := invoke[CreateChatRequest, ChatResponse](ctx, c, ChatsServiceName, "Create", &CreateChatRequest{})
	if err != nil {
		return nil, err
	}
	return &resp.Chat, nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	_, err := invoke[ChatRequest, Empty](ctx, c, ChatsServiceName, "Delete", &ChatRequest{ChatID: chatID})
	return err
}

func (c *Client) OpenChat(ctx context.Context, chatID string) (*Chat, error) {
	resp, err := invoke[ChatRequest, ChatResponse](ctx, c, ChatsServiceName, "Open", &ChatRequest{ChatID: chatID})
	if err != nil {
		return nil, err
	}
	return &resp.Chat, nil
}

func (c *Client) CloseChat(ctx context.Context) error {
	_, err := invoke[Empty, Empty](ctx, c, ChatsServiceName, "Close", &Empty{})
	return err
}

// WatchChats streams chat-list snapshots.
func (c *Client) WatchChats(ctx context.Context) (grpc.ServerStreamingClient[ListChatsResponse], error) {
	return watch[WatchChatsRequest, ListChatsResponse](ctx, c, &chatsServiceDesc, 0, &WatchChatsRequest{})
}

func (c *Client) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	resp, err := invoke[ListMessagesRequest, ListMessagesResponse](ctx, c, MessagesServiceName, "List", &ListMessagesRequest{ChatID: chatID})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) Send(ctx context.Context, chatID, text string) (*SendResponse, error) {
	return invoke[SendRequest, SendResponse](ctx, c, MessagesServiceName, "Send", &SendRequest{ChatID: chatID, Text: text})
}

func (c *Client) Retry(ctx context.Context, chatID, messageID string) error {
	_, err := invoke[RetryRequest, Empty](ctx, c, MessagesServiceName, "Retry", &RetryRequest{ChatID: chatID, MessageID: messageID})
	return err
}

// WatchMessages streams thread snapshots for one chat.
func (c *Client) WatchMessages(ctx context.Context, chatID string) (grpc.ServerStreamingClient[ListMessagesResponse], error) {
	return watch[ListMessagesRequest, ListMessagesResponse](ctx, c, &messagesServiceDesc, 0, &ListMessagesRequest{ChatID: chatID})
}
