// Package tui is the terminal rendition of the landing page contact section:
// the form, its counter, the send button and the dialog.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nazarhussain/contact-courier/internal/hardening"
	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/modal"
	"github.com/nazarhussain/contact-courier/internal/submit"
	"github.com/nazarhussain/contact-courier/internal/validate"
)

const (
	focusName = iota
	focusEmail
	focusMessage
	focusToken
	focusButton
	focusCount
)

type Options struct {
	Validator submit.Validator
	Ledger    submit.Ledger
	Remote    submit.Remote
	Meta      submit.MetaCollector
	Submit    submit.Config
	Logger    *slog.Logger
	Guard     *hardening.Guard

	Settle    time.Duration
	Scheduler modal.Scheduler

	// CaptchaToken pre-fills the token field.
	CaptchaToken string
}

type dialog struct {
	title   string
	body    string
	closing bool
}

type Model struct {
	ctx       context.Context
	bridge    *bridge
	orch      *submit.Orchestrator
	presenter *modal.Presenter
	guard     *hardening.Guard
	logger    *slog.Logger

	name    textinput.Model
	email   textinput.Model
	message textarea.Model
	token   textinput.Model

	focus    int
	disabled bool
	dialog   *dialog

	width  int
	height int
}

func New(ctx context.Context, opts Options) (Model, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = opts.Guard.Logger(logger)

	b := &bridge{}
	presenter := modal.New(b,
		modal.WithSettle(opts.Settle),
		modal.WithScheduler(opts.Scheduler),
		modal.WithScrollToForm(b.ScrollToForm),
		modal.WithLogger(logger),
	)
	orch, err := submit.New(submit.Deps{
		Form:      b,
		Control:   b,
		Scroller:  b,
		Widget:    widget{b: b},
		Validator: opts.Validator,
		Ledger:    opts.Ledger,
		Remote:    opts.Remote,
		Modal:     presenter,
		Meta:      opts.Meta,
		Logger:    logger,
	}, opts.Submit)
	if err != nil {
		return Model{}, err
	}

	m := Model{
		ctx:       ctx,
		bridge:    b,
		orch:      orch,
		presenter: presenter,
		guard:     opts.Guard,
		logger:    logger,
		name:      newInput("نام و نام خانوادگی", 80),
		email:     newInput("example@mail.com", 120),
		token:     newInput("توکن کپچا", 4096),
		message:   newMessageArea(),
	}
	m.token.SetValue(opts.CaptchaToken)
	m.name.Focus()
	return m, nil
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = 48
	return in
}

func newMessageArea() textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "پیام خود را بنویسید..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 5000
	ta.SetWidth(56)
	ta.SetHeight(6)
	return ta
}

// Run starts the full-screen form and blocks until the visitor quits.
func Run(ctx context.Context, opts Options) error {
	m, err := New(ctx, opts)
	if err != nil {
		return err
	}

	progOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if opts.Guard.Enabled() {
		progOpts = append(progOpts, tea.WithMouseCellMotion())
	}
	p := tea.NewProgram(m, progOpts...)
	m.bridge.attach(p.Send)

	_, err = p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.MouseMsg:
		// nothing on the page reacts to the mouse
		if m.guard.BlockContextMenu(msg.Button.String()) {
			m.logger.Debug("tui: context menu blocked")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case submittedMsg:
		m.logger.Debug("tui: attempt finished", "outcome", msg.out.Kind.String(), "submission_id", msg.out.SubmissionID)
		return m, nil

	case controlMsg:
		m.disabled = msg.disabled
		return m, nil

	case dialogShowMsg:
		m.dialog = &dialog{title: msg.title, body: msg.body}
		return m, nil

	case dialogClosingMsg:
		if m.dialog != nil {
			m.dialog.closing = true
		}
		return m, nil

	case dialogHideMsg:
		m.dialog = nil
		return m, nil

	case resetFormMsg:
		m.name.Reset()
		m.email.Reset()
		m.message.Reset()
		return m, nil

	case captchaResetMsg:
		m.token.Reset()
		return m, nil

	case focusFieldMsg:
		return m.setFocus(fieldFocus(msg.field))

	case scrollMsg:
		// the whole form fits one screen; the top is the name field
		if msg.top {
			return m.setFocus(focusName)
		}
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.guard.BlockKey(key) {
		return m, nil
	}

	if m.dialog != nil {
		if m.presenter.HandleKey(key) || m.dialog.closing {
			return m, nil
		}
		switch key {
		case "enter", " ", "space":
			return m, m.closeDialog()
		}
		return m, nil
	}

	switch key {
	case "tab", "down":
		if key == "down" && m.focus == focusMessage {
			break
		}
		return m.setFocus((m.focus + 1) % focusCount)
	case "shift+tab", "up":
		if key == "up" && m.focus == focusMessage {
			break
		}
		return m.setFocus((m.focus + focusCount - 1) % focusCount)
	case "ctrl+s":
		return m.submit()
	case "enter":
		if m.focus != focusMessage {
			return m.submit()
		}
	}
	return m.updateFocused(msg)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.disabled || m.orch.InFlight() {
		return m, nil
	}
	m.bridge.snapshot(submit.Values{
		Name:    m.name.Value(),
		Email:   m.email.Value(),
		Message: m.message.Value(),
	}, strings.TrimSpace(m.token.Value()))

	ctx, orch := m.ctx, m.orch
	return m, func() tea.Msg {
		return submittedMsg{out: orch.Submit(ctx)}
	}
}

// closeDialog runs off the event loop because the dialog view reports back
// through Program.Send.
func (m Model) closeDialog() tea.Cmd {
	p := m.presenter
	return func() tea.Msg {
		p.Close()
		return nil
	}
}

func (m Model) setFocus(i int) (tea.Model, tea.Cmd) {
	m.focus = i
	m.name.Blur()
	m.email.Blur()
	m.message.Blur()
	m.token.Blur()

	var cmd tea.Cmd
	switch i {
	case focusName:
		cmd = m.name.Focus()
	case focusEmail:
		cmd = m.email.Focus()
	case focusMessage:
		cmd = m.message.Focus()
	case focusToken:
		cmd = m.token.Focus()
	}
	return m, cmd
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusName:
		m.name, cmd = m.name.Update(msg)
	case focusEmail:
		m.email, cmd = m.email.Update(msg)
	case focusMessage:
		m.message, cmd = m.message.Update(msg)
	case focusToken:
		m.token, cmd = m.token.Update(msg)
	}
	return m, cmd
}

func fieldFocus(f validate.Field) int {
	switch f {
	case validate.FieldEmail:
		return focusEmail
	case validate.FieldMessage:
		return focusMessage
	case validate.FieldCaptcha:
		return focusToken
	default:
		return focusName
	}
}

func (m Model) View() string {
	if m.dialog != nil {
		return m.place(m.dialogView())
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("تماس با ما"))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("نام") + "\n" + m.name.View() + "\n\n")
	b.WriteString(labelStyle.Render("ایمیل") + "\n" + m.email.View() + "\n\n")
	b.WriteString(labelStyle.Render("پیام") + "\n" + m.message.View() + "\n")
	b.WriteString(m.counterView() + "\n\n")
	b.WriteString(labelStyle.Render("کپچا") + "\n" + m.token.View() + "\n\n")
	b.WriteString(m.buttonView())
	b.WriteString(helpStyle.Render("tab: next field • enter/ctrl+s: send • ctrl+c: quit"))
	return m.place(b.String())
}

func (m Model) counterView() string {
	n, reached := validate.Counter(m.message.Value())
	text := fmt.Sprintf("%d / %d", n, validate.MinMessageLength)
	if reached {
		return counterOKStyle.Render(text)
	}
	return counterShortStyle.Render(text)
}

func (m Model) buttonView() string {
	switch {
	case m.disabled:
		return buttonDisabledStyle.Render("در حال ارسال...") + "\n"
	case m.focus == focusButton:
		return buttonFocusedStyle.Render("ارسال پیام") + "\n"
	default:
		return buttonStyle.Render("ارسال پیام") + "\n"
	}
}

func (m Model) dialogView() string {
	d := m.dialog
	title := dialogTitleStyle
	if d.title == submit.ErrorTitle {
		title = dialogErrorTitleStyle
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		title.Render(d.title),
		d.body,
		"",
		buttonFocusedStyle.Render("متوجه شدم"),
	)
	if d.closing {
		return dialogClosingStyle.Render(content)
	}
	return dialogStyle.Render(content)
}

func (m Model) place(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}
