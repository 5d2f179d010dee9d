package views

import (
	"github.com/rivo/tview"

	"github.com/Atropina/Falai-Arizona/internal/tui/ui"
)

// AuthForm is the sign-in / sign-up screen.
type AuthForm struct {
	*tview.Form
	theme    *ui.Theme
	signup   bool
	onSubmit func(signup bool, name, email, password string)
}

// NewAuthForm creates the auth screen in sign-in mode.
func NewAuthForm(theme *ui.Theme) *AuthForm {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.BorderColor)
	form.SetTitleColor(theme.TitleColor)

	af := &AuthForm{Form: form, theme: theme}
	af.build()
	return af
}

// SetOnSubmit sets the callback invoked with the entered credentials.
func (af *AuthForm) SetOnSubmit(fn func(signup bool, name, email, password string)) {
	af.onSubmit = fn
}

func (af *AuthForm) build() {
	af.Clear(true)

	if af.signup {
		af.SetTitle(" Create Account ")
		af.AddInputField("Name", "", 40, nil, nil)
	} else {
		af.SetTitle(" Sign In ")
	}
	af.AddInputField("Email", "", 40, nil, nil)
	af.AddPasswordField("Password", "", 40, '*', nil)

	af.AddButton(buttonLabel(af.signup), func() {
		name := ""
		if af.signup {
			name = af.fieldText("Name")
		}
		if af.onSubmit != nil {
			af.onSubmit(af.signup, name, af.fieldText("Email"), af.fieldText("Password"))
		}
	})
	af.AddButton(toggleLabel(af.signup), func() {
		af.signup = !af.signup
		af.build()
	})
}

func (af *AuthForm) fieldText(label string) string {
	item := af.GetFormItemByLabel(label)
	if input, ok := item.(*tview.InputField); ok {
		return input.GetText()
	}
	return ""
}

func buttonLabel(signup bool) string {
	if signup {
		return "Create Account"
	}
	return "Sign In"
}

func toggleLabel(signup bool) string {
	if signup {
		return "Have an account? Sign In"
	}
	return "New here? Sign Up"
}
