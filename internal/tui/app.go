package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/roomchat/internal/api"
	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/tui/keys"
	"github.com/matheus3301/roomchat/internal/tui/model"
	"github.com/matheus3301/roomchat/internal/tui/ui"
	"github.com/matheus3301/roomchat/internal/tui/views"
	"github.com/rivo/tview"
	"google.golang.org/grpc"
)

const (
	pageChats   = "chats"
	pageChat    = "chat"
	pageDetails = "details"
	pageHelp    = "help"
	pageShare   = "share"
	pageConfirm = "confirm"

	promptHeight = 3
	retryDelay   = 2 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	root     *tview.Flex
	pages    *ui.Pages
	theme    *ui.Theme
	vm       *model.ViewModel
	registry *keys.Registry

	info     *ui.SessionInfo
	menu     *ui.Menu
	logo     *ui.Logo
	crumbs   *ui.Crumbs
	prompt   *ui.Prompt
	flashBar *ui.FlashBar

	chatList *views.ConversationList
	thread   *views.MessageThread
	details  *views.ConversationInfo
	help     *views.HelpView
	share    *views.ShareView

	components map[string]ui.Component
	focus      map[string]tview.Primitive

	ctx          context.Context
	cancel       context.CancelFunc
	threadCancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c model.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		pages:    ui.NewPages(),
		theme:    theme,
		vm:       model.NewViewModel(c),
		registry: keys.NewRegistry(),
		info:     ui.NewSessionInfo(theme),
		menu:     ui.NewMenu(theme),
		logo:     ui.NewLogo(theme),
		crumbs:   ui.NewCrumbs(theme),
		prompt:   ui.NewPrompt(theme),
		flashBar: ui.NewFlashBar(theme),
		chatList: views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		details:  views.NewConversationInfo(theme),
		help:     views.NewHelpView(theme),
		share:    views.NewShareView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.components = map[string]ui.Component{
		pageChats:   a.chatList,
		pageChat:    a.thread,
		pageDetails: a.details,
		pageHelp:    a.help,
		pageShare:   a.share,
	}
	a.focus = map[string]tview.Primitive{
		pageChats:   a.chatList,
		pageChat:    a.thread.Messages(),
		pageDetails: a.details,
		pageHelp:    a.help,
		pageShare:   a.share,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})

	a.registry.AddView(pageChats, "create", &keys.Action{
		Rune: 'c', Key: tcell.KeyRune,
		Description: "c:new room", Visible: true,
		Handler: func() { a.createChat() },
	})
	a.registry.AddView(pageChats, "delete", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Description: "x:delete", Visible: true,
		Handler: func() { a.confirmDelete(a.chatList.SelectedChat()) },
	})
	a.registry.AddView(pageChats, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "d:details", Visible: true,
		Handler: func() { a.showDetails(a.chatList.ChatByID(a.chatList.SelectedChat()), nil) },
	})

	a.registry.AddView(pageChat, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageChat, "retry", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:retry", Visible: true,
		Handler: func() { a.retryLast() },
	})
	a.registry.AddView(pageChat, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "d:details", Visible: true,
		Handler: func() { a.showDetails(a.vm.ActiveChat(), a.vm.Messages()) },
	})
	a.registry.AddView(pageChat, "share", &keys.Action{
		Rune: 'S', Key: tcell.KeyRune,
		Description: "S:share", Visible: true,
		Handler: func() { a.showShare() },
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.ChatByIndex(row); id != "" {
			a.openChat(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if _, err := a.vm.SendText(a.ctx, text); err != nil {
				a.vm.Flash.Err(err)
			}
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.chatList.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.chatList.ClearFilter()
		}
		a.hidePrompt()
	})

	a.pages.SetOnChange(func(stack []string) {
		a.renderCrumbs(stack)
		if c, ok := a.components[a.pages.Current()]; ok {
			a.menu.Update(c.Hints())
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageChats, a.chatList, true, false)
	a.pages.AddPage(pageChat, a.thread, true, false)
	a.pages.AddPage(pageDetails, a.details, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.AddPage(pageShare, a.share, true, false)

	header := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(a.logo, 20, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.root.SetBackgroundColor(a.theme.BgColor)

	a.app.SetRoot(a.root, true)
	a.pages.Reset(pageChats)

	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	current := a.pages.Current()

	// Let text input widgets handle all keys normally.
	focused := a.app.GetFocus()
	if focused == a.thread.Composer() && event.Key() == tcell.KeyEscape {
		a.app.SetFocus(a.thread.Messages())
		return nil
	}
	switch focused.(type) {
	case *tview.InputField, *ui.Prompt:
		return event
	}
	if current == pageConfirm {
		return event
	}

	if event.Key() == tcell.KeyEscape {
		if a.pages.Depth() == 1 && a.chatList.Filter() != "" {
			a.chatList.ClearFilter()
			return nil
		}
		a.back()
		return nil
	}

	if event.Key() == tcell.KeyRune {
		switch r := event.Rune(); {
		case r == ':':
			a.showPrompt(ui.PromptCommand, "")
			return nil
		case r == '/' && current == pageChats:
			a.showPrompt(ui.PromptFilter, "")
			return nil
		case r >= '1' && r <= '9' && current == pageChats:
			if id := a.chatList.ChatByIndex(int(r - '0')); id != "" {
				a.openChat(id)
			}
			return nil
		}
	}

	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

func (a *App) push(page string) {
	a.pages.Push(page)
	if p, ok := a.focus[page]; ok {
		a.app.SetFocus(p)
	}
}

// back pops the current page. Leaving the thread closes the chat.
func (a *App) back() {
	if a.pages.Pop() == pageChat {
		a.leaveChat()
	}
	if p, ok := a.focus[a.pages.Current()]; ok {
		a.app.SetFocus(p)
	}
}

func (a *App) showPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode)
	if text != "" {
		a.prompt.SetText(text)
	}
	a.root.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	if p, ok := a.focus[a.pages.Current()]; ok {
		a.app.SetFocus(p)
	}
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "login":
		a.login(cmd.Args)
	case "create":
		a.createChat()
	case "open":
		a.openByName(cmd.Args)
	case "delete":
		id := a.chatList.SelectedChat()
		if chat := a.vm.ActiveChat(); chat != nil && a.pages.Current() != pageChats {
			id = chat.ID
		}
		a.confirmDelete(id)
	case "retry":
		a.retryLast()
	case "share":
		a.showShare()
	case "help":
		a.push(pageHelp)
	case "quit":
		a.Stop()
	default:
		a.vm.Flash.Warn("Unknown command: " + cmd.Name)
	}
}

func (a *App) login(username string) {
	if strings.TrimSpace(username) == "" {
		a.vm.Flash.Warn("Usage: :login <username>")
		return
	}
	go func() {
		if err := a.vm.Login(a.ctx, username); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		_ = a.vm.LoadChats(a.ctx)
		a.app.QueueUpdateDraw(a.renderStatus)
	}()
}

func (a *App) createChat() {
	go func() {
		chat, err := a.vm.CreateChat(a.ctx)
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.openChat(chat.ID)
	}()
}

func (a *App) openByName(arg string) {
	if arg == "" {
		a.vm.Flash.Warn("Usage: :open <title|id>")
		return
	}
	for _, c := range a.vm.Chats() {
		if c.ID == arg || strings.EqualFold(c.Title, arg) {
			a.openChat(c.ID)
			return
		}
	}
	a.vm.Flash.Warn("No chat named " + arg)
}

func (a *App) confirmDelete(chatID string) {
	if chatID == "" {
		return
	}
	title := chatID
	if c := a.chatList.ChatByID(chatID); c != nil {
		title = c.Title
	}
	modal := tview.NewModal().
		SetText("Delete " + title + "?").
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.Pop()
			a.pages.RemovePage(pageConfirm)
			if label == "Delete" {
				a.deleteChat(chatID)
				return
			}
			if p, ok := a.focus[a.pages.Current()]; ok {
				a.app.SetFocus(p)
			}
		})
	a.pages.AddPage(pageConfirm, modal, true, false)
	a.pages.Push(pageConfirm)
	a.app.SetFocus(modal)
}

func (a *App) deleteChat(chatID string) {
	if chat := a.vm.ActiveChat(); chat != nil && chat.ID == chatID {
		a.stopThreadWatch()
	}
	go func() {
		if err := a.vm.DeleteChat(a.ctx, chatID); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("Deleted room")
		a.app.QueueUpdateDraw(func() {
			if a.vm.ActiveChat() == nil && a.pages.Current() != pageChats {
				a.pages.Reset(pageChats)
			}
			a.chatList.Update(a.vm.Chats())
			a.app.SetFocus(a.chatList)
		})
	}()
}

func (a *App) openChat(chatID string) {
	go func() {
		chat, err := a.vm.OpenChat(a.ctx, chatID)
		if err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetChat(chat.ID, chat.Title)
			a.thread.Update(a.vm.Messages())
			if a.pages.Current() != pageChat {
				a.pages.Reset(pageChats)
				a.push(pageChat)
			}
			a.watchThread(chat.ID)
		})
	}()
}

func (a *App) leaveChat() {
	a.stopThreadWatch()
	go func() {
		if err := a.vm.CloseChat(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
	}()
}

func (a *App) retryLast() {
	go func() {
		if err := a.vm.RetryLast(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
	}()
}

func (a *App) showDetails(chat *api.Chat, msgs []api.Message) {
	if chat == nil {
		return
	}
	a.details.Update(chat, msgs)
	a.push(pageDetails)
}

func (a *App) showShare() {
	chat := a.vm.ActiveChat()
	if chat == nil {
		a.vm.Flash.Warn("Open a chat to share it")
		return
	}
	a.share.Show(chat.Title, chat.ID)
	a.push(pageShare)
}

func (a *App) renderStatus() {
	st := a.vm.Status()
	if st == nil {
		return
	}
	a.info.Update(&ui.SessionData{
		Profile:      st.Profile,
		Username:     st.Username,
		Server:       st.ServerURL,
		State:        st.State,
		Online:       st.Online,
		ChatCount:    st.ChatCount,
		MessageCount: st.MessageCount,
		Uptime:       time.Duration(st.UptimeMs) * time.Millisecond,
	})
	a.crumbs.SetProfile(st.Profile)
	a.renderCrumbs(a.pages.Stack())
}

func (a *App) renderCrumbs(stack []string) {
	names := make([]string, len(stack))
	for i, p := range stack {
		names[i] = p
		if c, ok := a.components[p]; ok {
			names[i] = c.Name()
		}
	}
	a.crumbs.Update(names)
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadStatus(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		_ = a.vm.LoadChats(a.ctx)

		a.app.QueueUpdateDraw(func() {
			a.renderStatus()
			a.chatList.Update(a.vm.Chats())
			if st := a.vm.Status(); st != nil && st.Username == "" {
				a.vm.Flash.Info("Not logged in. Enter a username.")
				a.showPrompt(ui.PromptCommand, "login ")
			}
		})

		go a.watchChats()
		go a.watchEvents()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// startRefreshLoop keeps uptime current and expires flash messages.
func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = a.vm.LoadStatus(a.ctx)
				a.app.QueueUpdateDraw(func() {
					a.renderStatus()
					a.flashBar.Update(a.vm.Flash.GetMessage())
				})
			case msg := <-a.vm.Flash.Watch():
				a.app.QueueUpdateDraw(func() {
					a.flashBar.Update(&msg)
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

func (a *App) watchChats() {
	follow(a.ctx, a.vm.Client().WatchChats, func(resp *api.ListChatsResponse) {
		a.vm.SetChats(resp.Chats)
		a.app.QueueUpdateDraw(func() {
			a.chatList.Update(a.vm.Chats())
		})
	})
}

func (a *App) watchThread(chatID string) {
	a.stopThreadWatch()
	ctx, cancel := context.WithCancel(a.ctx)
	a.threadCancel = cancel
	open := func(ctx context.Context) (grpc.ServerStreamingClient[api.ListMessagesResponse], error) {
		return a.vm.Client().WatchMessages(ctx, chatID)
	}
	go follow(ctx, open, func(resp *api.ListMessagesResponse) {
		a.vm.SetMessages(chatID, resp.Messages)
		a.app.QueueUpdateDraw(func() {
			if a.thread.ChatID() == chatID {
				a.thread.Update(a.vm.Messages())
			}
		})
	})
}

func (a *App) stopThreadWatch() {
	if a.threadCancel != nil {
		a.threadCancel()
		a.threadCancel = nil
	}
}

func (a *App) watchEvents() {
	open := func(ctx context.Context) (grpc.ServerStreamingClient[api.Event], error) {
		return a.vm.Client().WatchEvents(ctx, "")
	}
	follow(a.ctx, open, func(evt *api.Event) {
		switch evt.Kind {
		case bus.KindStatusChanged, bus.KindNetworkChanged:
			_ = a.vm.LoadStatus(a.ctx)
			a.app.QueueUpdateDraw(a.renderStatus)
		case bus.KindNotice:
			flashNotice(a.vm.Flash, evt)
		}
	})
}

// flashNotice shows a conversation notice at the matching level.
func flashNotice(f *ui.FlashModel, evt *api.Event) {
	switch evt.Notice {
	case "offline":
		f.Warn(evt.Text)
	case "error":
		f.Err(errors.New(evt.Text))
	default:
		f.Info(evt.Text)
	}
}

// follow reads a server stream until ctx ends, reopening it after errors.
func follow[T any](ctx context.Context, open func(context.Context) (grpc.ServerStreamingClient[T], error), handle func(*T)) {
	for ctx.Err() == nil {
		if stream, err := open(ctx); err == nil {
			for {
				msg, err := stream.Recv()
				if err != nil {
					break
				}
				handle(msg)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.stopThreadWatch()
	a.cancel()
	a.app.Stop()
}
