package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Atropina/Falai-Arizona/internal/roster"
	"github.com/Atropina/Falai-Arizona/internal/tui/ui"
)

// ContactList is the main contact table: one row per contact with a
// presence dot and an unread badge.
type ContactList struct {
	*tview.Table
	theme   *ui.Theme
	entries []roster.Entry
}

// NewContactList creates a new contact list table.
func NewContactList(theme *ui.Theme) *ContactList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Contacts ")
	table.SetTitleColor(theme.TitleColor)

	return &ContactList{Table: table, theme: theme}
}

// Update refreshes the table with a roster snapshot.
func (cl *ContactList) Update(entries []roster.Entry) {
	row, _ := cl.GetSelection()
	cl.entries = entries
	cl.Clear()

	header := func(col int, text string) {
		cl.SetCell(0, col, tview.NewTableCell(" "+text).
			SetSelectable(false).
			SetTextColor(tview.Styles.SecondaryTextColor))
	}
	header(0, "")
	header(1, "Name")
	header(2, "Unread")

	online := ui.ColorName(cl.theme.OnlineColor)
	offline := ui.ColorName(cl.theme.OfflineColor)
	unreadC := ui.ColorName(cl.theme.UnreadColor)

	for i, e := range entries {
		r := i + 1
		dot := fmt.Sprintf("[%s]●[-]", offline)
		if e.User.Online {
			dot = fmt.Sprintf("[%s]●[-]", online)
		}
		badge := ""
		if e.Unread > 0 {
			badge = fmt.Sprintf("[%s]%d[-]", unreadC, e.Unread)
		}

		cl.SetCell(r, 0, tview.NewTableCell(" "+dot).SetMaxWidth(3))
		cl.SetCell(r, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(e.User.Name))).
			SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(r, 2, tview.NewTableCell(" "+badge).SetMaxWidth(8))
	}

	if row > 0 && row <= len(entries) {
		cl.Select(row, 0)
	}
}

// SelectedContact returns the id of the currently selected contact.
func (cl *ContactList) SelectedContact() string {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.entries) {
		return cl.entries[idx].User.ID
	}
	return ""
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
