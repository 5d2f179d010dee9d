package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Atropina/Falai-Arizona/internal/conversation"
	"github.com/Atropina/Falai-Arizona/internal/store"
	"github.com/Atropina/Falai-Arizona/internal/tui/ui"
)

// Thread displays one conversation: the ordered message list, the remote
// party's typing indicator and the composer. Keystrokes in the composer
// report typing activity; Enter sends.
type Thread struct {
	*tview.Flex
	theme       *ui.Theme
	messages    *tview.TextView
	composer    *tview.InputField
	contactName string
	contactID   string
	localID     string
	snap        conversation.Snapshot
	onSend      func(text string)
	onTyping    func()
}

// NewThread creates a new thread view for the signed-in user.
func NewThread(theme *ui.Theme, localID string) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	t := &Thread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		localID:  localID,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && t.onSend != nil {
			text := composer.GetText()
			t.onSend(text)
			composer.SetText("")
		}
	})
	composer.SetChangedFunc(func(text string) {
		if text != "" && t.onTyping != nil {
			t.onTyping()
		}
	})

	return t
}

// SetContact updates the contact this thread renders.
func (t *Thread) SetContact(id, name string) {
	t.contactID = id
	t.contactName = name
	t.messages.SetTitle(fmt.Sprintf(" %s ", name))
}

// ContactID returns the current contact id.
func (t *Thread) ContactID() string { return t.contactID }

// SetOnSend sets the callback when a message is sent.
func (t *Thread) SetOnSend(fn func(text string)) { t.onSend = fn }

// SetOnTyping sets the callback for composer keystrokes.
func (t *Thread) SetOnTyping(fn func()) { t.onTyping = fn }

// Update renders a conversation snapshot, oldest message first. Each message
// carries its ordinal so commands can address it.
func (t *Thread) Update(snap conversation.Snapshot) {
	t.snap = snap
	t.messages.Clear()

	for i, m := range snap.Messages {
		sender := t.contactName
		if m.Sender == t.localID {
			sender = "You"
		}
		body := m.Body
		if m.Kind == store.KindMedia {
			body = fmt.Sprintf("[::d][attachment: %s][-:-:-] %s", m.MediaType, m.MediaURL)
		}
		line := fmt.Sprintf("[::d]#%d[-:-:-] [::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			i+1,
			tview.Escape(sanitizeForTerminal(sender)),
			formatTimestamp(m.Timestamp),
			tview.Escape(sanitizeForTerminal(body)))
		_, _ = fmt.Fprint(t.messages, line)
	}

	if snap.RemoteTyping {
		typing := ui.ColorName(t.theme.TypingColor)
		_, _ = fmt.Fprintf(t.messages, "[%s]%s is typing…[-]\n",
			typing, tview.Escape(sanitizeForTerminal(t.contactName)))
	}

	t.messages.ScrollToEnd()
}

// Message returns the message at the rendered ordinal (1-based), if any.
func (t *Thread) Message(ordinal int) (store.Message, bool) {
	if ordinal < 1 || ordinal > len(t.snap.Messages) {
		return store.Message{}, false
	}
	return t.snap.Messages[ordinal-1], true
}

// Messages returns the messages text view (for focus management).
func (t *Thread) Messages() *tview.TextView { return t.messages }

// Composer returns the composer input field (for focus management).
func (t *Thread) Composer() *tview.InputField { return t.composer }
