package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/roomchat/internal/api"
	"github.com/matheus3301/roomchat/internal/lock"
	"github.com/matheus3301/roomchat/internal/session"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := session.Resolve(*profileFlag)
	if err := session.ValidateName(profileName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Profile commands work without a daemon.
	switch args[0] {
	case "profiles":
		cmdProfiles(profileName, *jsonFlag)
		return
	case "use":
		if len(args) < 2 {
			usage("use <profile>")
		}
		if err := session.SetDefault(args[1]); err != nil {
			fail(err)
		}
		fmt.Printf("Default profile: %s\n", args[1])
		return
	}

	socketPath := session.SocketPath(profileName)
	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		cmdWatch(c, prefix, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "login":
		if len(args) < 2 {
			usage("login <username>")
		}
		resp, err := c.Login(ctx, args[1])
		if err != nil {
			fail(err)
		}
		output(*jsonFlag, resp, func() { fmt.Printf("Logged in as %s (%s)\n", resp.Username, resp.UserID) })
	case "chats":
		chats, err := c.ListChats(ctx)
		if err != nil {
			fail(err)
		}
		output(*jsonFlag, chats, func() { printChats(chats) })
	case "create":
		chat, err := c.CreateChat(ctx)
		if err != nil {
			fail(err)
		}
		output(*jsonFlag, chat, func() { fmt.Printf("Created %s (%s)\n", chat.Title, chat.ID) })
	case "delete":
		if len(args) < 2 {
			usage("delete <chat-id>")
		}
		if err := c.DeleteChat(ctx, args[1]); err != nil {
			fail(err)
		}
		fmt.Printf("Deleted %s\n", args[1])
	case "open":
		if len(args) < 2 {
			usage("open <chat-id>")
		}
		chat, err := c.OpenChat(ctx, args[1])
		if err != nil {
			fail(err)
		}
		output(*jsonFlag, chat, func() { fmt.Printf("Opened %s (%s)\n", chat.Title, chat.ID) })
	case "close":
		if err := c.CloseChat(ctx); err != nil {
			fail(err)
		}
	case "messages":
		if len(args) < 2 {
			usage("messages <chat-id>")
		}
		msgs, err := c.ListMessages(ctx, args[1])
		if err != nil {
			fail(err)
		}
		output(*jsonFlag, msgs, func() { printMessages(msgs) })
	case "send":
		if len(args) < 3 {
			usage("send <chat-id> <text>")
		}
		resp, err := c.Send(ctx, args[1], strings.Join(args[2:], " "))
		if err != nil {
			fail(err)
		}
		output(*jsonFlag, resp, func() {
			if resp.Queued {
				fmt.Printf("Queued %s: %s\n", resp.Message.ID, resp.Reason)
				return
			}
			fmt.Printf("Sent %s\n", resp.Message.ID)
		})
	case "retry":
		if len(args) < 3 {
			usage("retry <chat-id> <message-id>")
		}
		if err := c.Retry(ctx, args[1], args[2]); err != nil {
			fail(err)
		}
		fmt.Printf("Retried %s\n", args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: roomchatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                       Show daemon status")
	fmt.Fprintln(os.Stderr, "  login <username>             Log in and reconnect")
	fmt.Fprintln(os.Stderr, "  chats                        List chats")
	fmt.Fprintln(os.Stderr, "  create                       Create a room")
	fmt.Fprintln(os.Stderr, "  delete <chat-id>             Delete a room")
	fmt.Fprintln(os.Stderr, "  open <chat-id>               Open a chat")
	fmt.Fprintln(os.Stderr, "  close                        Close the open chat")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>           List messages")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text>        Send a message")
	fmt.Fprintln(os.Stderr, "  retry <chat-id> <message-id> Retry an unsent message")
	fmt.Fprintln(os.Stderr, "  watch [prefix]               Stream daemon events")
	fmt.Fprintln(os.Stderr, "  profiles                     List known profiles")
	fmt.Fprintln(os.Stderr, "  use <profile>                Set the default profile")
}

func usage(cmd string) {
	fmt.Fprintf(os.Stderr, "usage: roomchatctl %s\n", cmd)
	os.Exit(1)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	user := resp.Username
	if user == "" {
		user = "(not logged in)"
	}
	state := resp.State
	if resp.StateReason != "" {
		state += " (" + resp.StateReason + ")"
	}
	fmt.Printf("Profile:  %s\n", resp.Profile)
	fmt.Printf("User:     %s\n", user)
	fmt.Printf("Server:   %s\n", resp.ServerURL)
	fmt.Printf("State:    %s\n", state)
	fmt.Printf("Online:   %v\n", resp.Online)
	if resp.CurrentChat != "" {
		fmt.Printf("Open:     %s\n", resp.CurrentChat)
	}
	fmt.Printf("Chats:    %d\n", resp.ChatCount)
	fmt.Printf("Messages: %d\n", resp.MessageCount)
	fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
}

func cmdWatch(c *api.Client, prefix string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := c.WatchEvents(ctx, prefix)
	if err != nil {
		fail(err)
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			fail(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		ts := time.UnixMilli(evt.TimeMs).Format("15:04:05")
		fmt.Printf("%s %-24s %s\n", ts, evt.Kind, eventDetail(evt))
	}
}

func eventDetail(evt *api.Event) string {
	var parts []string
	if evt.ChatID != "" {
		parts = append(parts, "chat="+evt.ChatID)
	}
	if evt.State != "" {
		parts = append(parts, "state="+evt.State)
	}
	if evt.Notice != "" {
		parts = append(parts, "notice="+evt.Notice)
	}
	if strings.HasPrefix(evt.Kind, "net.") {
		parts = append(parts, fmt.Sprintf("online=%v", evt.Online))
	}
	if evt.Text != "" {
		parts = append(parts, fmt.Sprintf("%q", evt.Text))
	}
	return strings.Join(parts, " ")
}

type profileInfo struct {
	Name          string     `json:"name"`
	Path          string     `json:"path"`
	Selected      bool       `json:"selected"`
	DaemonRunning bool       `json:"daemon_running"`
	DaemonPID     int        `json:"daemon_pid,omitempty"`
	DaemonSince   *time.Time `json:"daemon_since,omitempty"`
}

func cmdProfiles(current string, jsonOut bool) {
	names, err := session.List()
	if err != nil {
		fail(err)
	}
	profiles := make([]profileInfo, 0, len(names))
	for _, name := range names {
		info := profileInfo{
			Name:     name,
			Path:     session.Dir(name),
			Selected: name == current,
		}
		if owner, ok := lock.Holder(info.Path); ok {
			info.DaemonRunning = true
			info.DaemonPID = owner.PID
			if !owner.Since.IsZero() {
				info.DaemonSince = &owner.Since
			}
		}
		profiles = append(profiles, info)
	}
	if jsonOut {
		outputJSON(profiles)
		return
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles found.")
		return
	}
	for _, p := range profiles {
		running := "stopped"
		if p.DaemonRunning {
			running = fmt.Sprintf("running, pid %d", p.DaemonPID)
			if p.DaemonSince != nil {
				running += ", up " + time.Since(*p.DaemonSince).Round(time.Second).String()
			}
		}
		marker := " "
		if p.Selected {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s (%s)\n", marker, p.Name, p.Path, running)
	}
}

func printChats(chats []api.Chat) {
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, c := range chats {
		fmt.Printf("%-38s %-16s %3d  %s\n", c.ID, c.Title, c.UnreadCount, c.LastMessage)
	}
}

func printMessages(msgs []api.Message) {
	for _, m := range msgs {
		sender := m.SenderUsername
		if m.IsFromUser {
			sender = "you"
		}
		ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
		fmt.Printf("%s %-12s [%s] %s\n", ts, sender, m.State, m.Content)
	}
}

func output(jsonOut bool, v any, text func()) {
	if jsonOut {
		outputJSON(v)
		return
	}
	text()
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
