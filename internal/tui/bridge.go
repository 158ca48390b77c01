package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nazarhussain/contact-courier/internal/captcha"
	"github.com/nazarhussain/contact-courier/internal/modal"
	"github.com/nazarhussain/contact-courier/internal/submit"
	"github.com/nazarhussain/contact-courier/internal/validate"
)

type (
	resetFormMsg    struct{}
	captchaResetMsg struct{}
	focusFieldMsg   struct{ field validate.Field }
	controlMsg      struct{ disabled bool }
	scrollMsg       struct{ top bool }

	dialogShowMsg    struct{ title, body string }
	dialogClosingMsg struct{}
	dialogHideMsg    struct{}

	submittedMsg struct{ out submit.Outcome }
)

// bridge lets the orchestrator and the dialog timers drive the screen. Its
// methods run outside the event loop and hand changes to it as messages;
// the event loop itself never calls them, since Program.Send would block.
type bridge struct {
	mu       sync.Mutex
	send     func(tea.Msg)
	values   submit.Values
	token    string
	disabled bool
}

var (
	_ submit.Form     = (*bridge)(nil)
	_ submit.Control  = (*bridge)(nil)
	_ submit.Scroller = (*bridge)(nil)
	_ modal.View      = (*bridge)(nil)
	_ captcha.Widget  = widget{}
)

func (b *bridge) attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = send
}

func (b *bridge) post(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

// snapshot freezes what the visitor typed for the next attempt.
func (b *bridge) snapshot(v submit.Values, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = v
	b.token = token
}

func (b *bridge) Values() submit.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.values
}

func (b *bridge) Reset() {
	b.mu.Lock()
	b.values = submit.Values{}
	b.mu.Unlock()
	b.post(resetFormMsg{})
}

func (b *bridge) Focus(field validate.Field) { b.post(focusFieldMsg{field: field}) }

func (b *bridge) Disabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disabled
}

func (b *bridge) SetDisabled(disabled bool) {
	b.mu.Lock()
	b.disabled = disabled
	b.mu.Unlock()
	b.post(controlMsg{disabled: disabled})
}

func (b *bridge) ScrollToTop()  { b.post(scrollMsg{top: true}) }
func (b *bridge) ScrollToForm() { b.post(scrollMsg{}) }

// widget is the captcha side of the bridge. Form and captcha.Widget both
// have a Reset, so the widget gets its own type.
type widget struct{ b *bridge }

func (w widget) ResponseToken() string {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	return w.b.token
}

func (w widget) Reset() {
	w.b.mu.Lock()
	w.b.token = ""
	w.b.mu.Unlock()
	w.b.post(captchaResetMsg{})
}

// modal.View

func (b *bridge) Show(title, body string) { b.post(dialogShowMsg{title: title, body: body}) }
func (b *bridge) BeginClose()             { b.post(dialogClosingMsg{}) }
func (b *bridge) Hide()                   { b.post(dialogHideMsg{}) }
