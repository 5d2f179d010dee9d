package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/Atropina/Falai-Arizona/internal/auth"
	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/config"
	"github.com/Atropina/Falai-Arizona/internal/conversation"
	"github.com/Atropina/Falai-Arizona/internal/notify"
	"github.com/Atropina/Falai-Arizona/internal/presence"
	"github.com/Atropina/Falai-Arizona/internal/roster"
	"github.com/Atropina/Falai-Arizona/internal/status"
	"github.com/Atropina/Falai-Arizona/internal/store"
	"github.com/Atropina/Falai-Arizona/internal/tui/keys"
	"github.com/Atropina/Falai-Arizona/internal/tui/ui"
	"github.com/Atropina/Falai-Arizona/internal/tui/views"
	"github.com/Atropina/Falai-Arizona/internal/upload"
)

// App is the main TUI application shell. It owns the page stack (auth,
// contacts, chat), wires roster and conversation updates into the views and
// keeps the status bar fed from the bus.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	theme    *ui.Theme
	registry *keys.Registry
	flash    *ui.FlashModel

	statusBar *views.StatusBar
	contacts  *views.ContactList
	authForm  *views.AuthForm
	thread    *views.Thread
	prompt    *tview.InputField

	db       *store.DB
	bus      *bus.Bus
	machine  *status.Machine
	authp    *auth.Provider
	tracker  *presence.Tracker
	uploader *upload.Coordinator
	cfg      *config.Config
	logger   *zap.Logger

	sessionName string
	user        *store.UserRecord
	rost        *roster.Roster
	view        *conversation.View
	notifier    *notify.Dispatcher
	watcher     *notify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
}

// Deps carries everything the shell needs.
type Deps struct {
	DB       *store.DB
	Bus      *bus.Bus
	Machine  *status.Machine
	Auth     *auth.Provider
	Tracker  *presence.Tracker
	Uploader *upload.Coordinator
	Config   *config.Config
	Logger   *zap.Logger
	Session  string
}

// NewApp creates the TUI application.
func NewApp(d Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		pages:       tview.NewPages(),
		theme:       theme,
		registry:    keys.NewRegistry(),
		flash:       ui.NewFlashModel(),
		statusBar:   views.NewStatusBar(theme),
		contacts:    views.NewContactList(theme),
		authForm:    views.NewAuthForm(theme),
		db:          d.DB,
		bus:         d.Bus,
		machine:     d.Machine,
		authp:       d.Auth,
		tracker:     d.Tracker,
		uploader:    d.Uploader,
		cfg:         d.Config,
		logger:      d.Logger,
		sessionName: d.Session,
		ctx:         ctx,
		cancel:      cancel,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	a.statusBar.SetSession(d.Session)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddView("chat", "delete", &keys.Action{
		Rune: 'D', Key: tcell.KeyRune,
		Description: "D:delete conversation", Visible: true,
		Handler: func() { a.confirmDeleteConversation() },
	})
	a.registry.AddView("contacts", "signout", &keys.Action{
		Rune: 'o', Key: tcell.KeyRune,
		Description: "o:sign out", Visible: true,
		Handler: func() { a.signOut() },
	})
}

func (a *App) setupCallbacks() {
	a.contacts.SetSelectedFunc(func(row, col int) {
		if id := a.contacts.SelectedContact(); id != "" {
			a.openConversation(id)
		}
	})

	a.authForm.SetOnSubmit(func(signup bool, name, email, password string) {
		go func() {
			var u *store.UserRecord
			var err error
			if signup {
				u, err = a.authp.SignUp(name, email, password)
			} else {
				u, err = a.authp.SignIn(email, password)
			}
			if err != nil {
				a.flash.Err(err)
				a.refreshStatus()
				return
			}
			a.app.QueueUpdateDraw(func() { a.signedIn(u) })
		}()
	})
}

func (a *App) setupLayout() {
	a.prompt = tview.NewInputField().SetLabel(" :").SetFieldWidth(0)
	a.prompt.SetBorder(true)
	a.prompt.SetBorderColor(a.theme.PromptBorder)
	a.prompt.SetDoneFunc(func(key tcell.Key) {
		text := a.prompt.GetText()
		a.prompt.SetText("")
		a.pages.HidePage("prompt")
		if key == tcell.KeyEnter && text != "" {
			a.runCommand(ParseCommand(text))
		}
	})

	a.pages.AddPage("auth", center(a.authForm, 50, 13), true, false)
	a.pages.AddPage("contacts", a.contacts, true, true)
	a.pages.AddPage("prompt", bottom(a.prompt, 3), true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "chat" {
			a.leaveConversation()
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}
		if _, ok := focused.(*tview.Button); ok {
			return event
		}
		if currentPage == "auth" {
			return event
		}

		if event.Key() == tcell.KeyRune && event.Rune() == ':' {
			a.pages.ShowPage("prompt")
			a.app.SetFocus(a.prompt)
			return nil
		}
		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.thread.Composer())
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

// Run starts the application. It resumes a persisted identity when one
// exists; otherwise the auth screen is shown.
func (a *App) Run() error {
	u, err := a.authp.Current()
	if err != nil {
		return err
	}
	if u != nil {
		a.signedIn(u)
	} else {
		_ = a.machine.Transition(status.SignedOut)
		a.showAuth()
	}

	go a.consumeBus()
	go a.tick()

	return a.app.Run()
}

func (a *App) showAuth() {
	a.pages.SwitchToPage("auth")
	a.app.SetFocus(a.authForm)
	a.renderStatus()
}

// signedIn brings the session online for user u: presence lease, roster and
// the contact list.
func (a *App) signedIn(u *store.UserRecord) {
	a.user = u
	if a.machine.Current() != status.Online {
		if err := a.machine.Transition(status.Online); err != nil {
			a.logger.Warn("state transition failed", zap.Error(err))
		}
	}

	if err := a.tracker.Enter(a.ctx, u.ID); err != nil {
		a.logger.Warn("presence enter failed", zap.Error(err))
		a.flash.Warn("presence unavailable")
		_ = a.machine.Transition(status.Degraded)
	}

	// Permission is evaluated once per session, here. The watcher alerts
	// for contacts without an open conversation view.
	a.notifier = notify.NewDispatcher(a.bus, a.logger, u.ID, a.cfg.Notifications.Enabled)
	w, err := notify.Watch(a.db, a.bus, a.notifier, a.logger, u.ID)
	if err != nil {
		a.logger.Warn("inbound watcher failed", zap.Error(err))
	} else {
		a.watcher = w
	}

	a.rost = roster.Open(a.db, a.logger, u.ID)
	go a.consumeRoster(a.rost)

	a.thread = views.NewThread(a.theme, u.ID)
	a.thread.SetOnSend(func(text string) {
		if a.view == nil {
			return
		}
		if err := a.view.Send(text); err != nil {
			a.flash.Err(err)
			a.renderStatus()
		}
	})
	a.thread.SetOnTyping(func() {
		if a.view == nil {
			return
		}
		if err := a.view.TypingPulse(); err != nil {
			a.logger.Warn("typing pulse failed", zap.Error(err))
		}
	})
	a.pages.AddPage("chat", a.thread, true, false)

	a.pages.SwitchToPage("contacts")
	a.app.SetFocus(a.contacts)
	a.renderStatus()
}

func (a *App) signOut() {
	a.closeConversation()
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	a.notifier = nil
	if a.rost != nil {
		a.rost.Close()
		a.rost = nil
	}
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := a.tracker.Leave(leaveCtx); err != nil {
		a.logger.Warn("presence leave failed", zap.Error(err))
	}
	cancel()
	if err := a.authp.SignOut(); err != nil {
		a.flash.Err(err)
	}
	a.user = nil
	_ = a.machine.Transition(status.SignedOut)
	a.showAuth()
}

// openConversation switches to the chat page for one contact. At most one
// view is live at a time; a previous one, visible or backgrounded, is closed
// first.
func (a *App) openConversation(contactID string) {
	a.closeConversation()

	name := contactID
	if e, ok := a.rost.Contact(contactID); ok {
		name = e.User.Name
	}

	v := conversation.Open(a.db, a.notifier, a.logger, a.user.ID, contactID,
		conversation.WithQuietPeriod(a.cfg.Typing.Quiet()))
	v.SetVisible(true)
	a.view = v
	if a.watcher != nil {
		a.watcher.Attach(contactID)
	}

	if err := v.MarkRead(); err != nil {
		a.logger.Warn("mark read failed", zap.Error(err))
	}

	a.thread.SetContact(contactID, name)
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.thread.Composer())

	go func() {
		for {
			select {
			case snap, ok := <-v.Snapshots():
				if !ok {
					return
				}
				a.app.QueueUpdateDraw(func() {
					if a.view == v {
						a.thread.Update(snap)
					}
				})
				// New inbound messages are read immediately, but only
				// while the thread is actually on screen; a backgrounded
				// conversation keeps its unread count.
				if v.Visible() {
					if err := v.MarkRead(); err != nil {
						a.logger.Warn("mark read failed", zap.Error(err))
					}
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// leaveConversation returns to the contact list but keeps the view alive in
// the background, so inbound messages for this contact still reach the
// notifier with the surface hidden.
func (a *App) leaveConversation() {
	if a.view != nil {
		a.view.SetVisible(false)
	}
	if a.pages.HasPage("contacts") {
		a.pages.SwitchToPage("contacts")
		a.app.SetFocus(a.contacts)
	}
}

// closeConversation tears the view down for good: sign-out, shutdown, or a
// switch to another contact. The watcher takes the contact back over.
func (a *App) closeConversation() {
	if a.view != nil {
		a.view.Close()
		a.view = nil
	}
	if a.watcher != nil {
		a.watcher.Attach("")
	}
	if a.pages.HasPage("contacts") {
		a.pages.SwitchToPage("contacts")
		a.app.SetFocus(a.contacts)
	}
}

func (a *App) confirmDeleteConversation() {
	if a.view == nil {
		return
	}
	modal := tview.NewModal().
		SetText("Delete every message in this conversation?").
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage("confirm")
			if label == "Delete" && a.view != nil {
				if err := a.view.DeleteConversation(); err != nil {
					a.flash.Err(err)
					a.renderStatus()
				}
			}
		})
	a.pages.AddPage("confirm", modal, true, true)
	a.app.SetFocus(modal)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "upload":
		a.runUpload(cmd.Args)
	case "delmsg":
		a.runDeleteMessage(cmd.Args)
	case "signout":
		a.signOut()
	case "quit", "q":
		a.app.Stop()
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
		a.renderStatus()
	}
}

// runDeleteMessage removes one of the local user's own messages, addressed
// by the ordinal shown in the thread.
func (a *App) runDeleteMessage(arg string) {
	if a.view == nil || arg == "" {
		a.flash.Warn("usage: delmsg <message number>")
		a.renderStatus()
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		a.flash.Warn("usage: delmsg <message number>")
		a.renderStatus()
		return
	}
	msg, ok := a.thread.Message(n)
	if !ok {
		a.flash.Warn("no such message")
		a.renderStatus()
		return
	}
	if msg.Sender != a.user.ID {
		a.flash.Warn("only your own messages can be deleted")
		a.renderStatus()
		return
	}
	if err := a.view.DeleteMessage(msg.ID); err != nil {
		a.flash.Err(err)
		a.renderStatus()
	}
}

// runUpload sends the file at path as an attachment in the open conversation.
func (a *App) runUpload(path string) {
	v := a.view
	if v == nil {
		a.flash.Warn("open a conversation first")
		a.renderStatus()
		return
	}
	if path == "" {
		a.flash.Warn("usage: upload <path>")
		a.renderStatus()
		return
	}
	go func() {
		f, err := os.Open(path)
		if err != nil {
			a.flash.Err(err)
			a.refreshStatus()
			return
		}
		defer func() { _ = f.Close() }()
		info, err := f.Stat()
		if err != nil {
			a.flash.Err(err)
			a.refreshStatus()
			return
		}

		_, err = a.uploader.Upload(a.ctx, a.user.ID, v.Remote(), filepath.Base(path), f, info.Size())
		if err != nil {
			a.flash.Err(err)
		} else {
			a.flash.Info("attachment sent")
		}
		a.refreshStatus()
	}()
}

// consumeBus feeds alerts and state changes into the status bar.
func (a *App) consumeBus() {
	events, unsub := a.bus.Subscribe("", 64)
	defer unsub()
	for {
		select {
		case evt := <-events:
			switch p := evt.Payload.(type) {
			case bus.Alert:
				sender := p.Sender
				if a.rost != nil {
					if e, ok := a.rost.Contact(p.Sender); ok {
						sender = e.User.Name
					}
				}
				a.flash.Info(sender + ": " + p.Preview)
				a.refreshStatus()
			case bus.UploadProgress:
				if label := progressLabel(p); label != "" {
					a.flash.Set(label, 3*time.Second)
					a.refreshStatus()
				}
			case status.StatusChange:
				a.refreshStatus()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) consumeRoster(r *roster.Roster) {
	for {
		select {
		case entries, ok := <-r.Snapshots():
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				if a.rost == r {
					a.contacts.Update(entries)
				}
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// tick repaints the status bar so the clock advances and flashes expire.
func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refreshStatus()
		case <-a.ctx.Done():
			return
		}
	}
}

// renderStatus repaints the status bar. Only call from the event goroutine;
// background goroutines go through refreshStatus.
func (a *App) renderStatus() {
	a.statusBar.SetState(string(a.machine.Current()))
	a.statusBar.SetFlash(a.flash.GetMessage())
}

func (a *App) refreshStatus() {
	a.app.QueueUpdateDraw(a.renderStatus)
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.closeConversation()
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.rost != nil {
		a.rost.Close()
	}
	a.cancel()
	a.app.Stop()
}

// progressLabel formats an in-flight upload for the status bar. Unknown
// totals render as a byte count so the bar still moves.
func progressLabel(p bus.UploadProgress) string {
	if p.Total <= 0 {
		if p.Sent <= 0 {
			return ""
		}
		return fmt.Sprintf("uploading %d bytes", p.Sent)
	}
	pct := p.Sent * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("uploading %d%%", pct)
}

func center(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false), width, 0, true).
		AddItem(nil, 0, 1, false)
}

func bottom(p tview.Primitive, height int) tview.Primitive {
	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(p, height, 0, true)
}
