package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/Atropina/Falai-Arizona/internal/tui/ui"
)

// StatusBar displays the session name, connection state and flash messages.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	state   string
	flash   *ui.FlashMessage
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetFlash renders a transient message, or clears it when nil.
func (sb *StatusBar) SetFlash(msg *ui.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.session, sb.state, clock)
	if sb.flash != nil {
		var color string
		switch sb.flash.Level {
		case ui.FlashWarn:
			color = ui.ColorName(sb.theme.FlashWarnColor)
		case ui.FlashErr:
			color = ui.ColorName(sb.theme.FlashErrColor)
		default:
			color = ui.ColorName(sb.theme.FlashInfoColor)
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(sb.flash.Text))
	}

	_, _ = fmt.Fprint(sb, line)
}
