package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/nazarhussain/contact-courier/internal/modal"
	"github.com/nazarhussain/contact-courier/internal/submit"
	"github.com/nazarhussain/contact-courier/internal/validate"
)

// consoleForm holds the flag values of one submit invocation.
type consoleForm struct {
	mu     sync.Mutex
	values submit.Values
	out    io.Writer
}

var _ submit.Form = (*consoleForm)(nil)

func (f *consoleForm) Values() submit.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

func (f *consoleForm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = submit.Values{}
}

func (f *consoleForm) Focus(field validate.Field) {
	fmt.Fprintf(f.out, "check --%s and try again\n", field)
}

// spinnerControl shows progress while the attempt holds the control.
type spinnerControl struct {
	mu       sync.Mutex
	s        *spinner.Spinner
	disabled bool
}

var _ submit.Control = (*spinnerControl)(nil)

func newSpinnerControl(w io.Writer) *spinnerControl {
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " در حال ارسال..."
	return &spinnerControl{s: s}
}

func (c *spinnerControl) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

func (c *spinnerControl) SetDisabled(disabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if disabled == c.disabled {
		return
	}
	c.disabled = disabled
	if disabled {
		c.s.Start()
	} else {
		c.s.Stop()
	}
}

var (
	consoleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#1758C8")).
			Padding(0, 2)
	consoleTitle = lipgloss.NewStyle().Bold(true)
)

// consoleDialog prints each dialog once; closing has nothing to animate.
type consoleDialog struct {
	out io.Writer
}

var _ modal.View = consoleDialog{}

func (d consoleDialog) Show(title, body string) {
	fmt.Fprintln(d.out, consoleBox.Render(consoleTitle.Render(title)+"\n\n"+body))
}

func (consoleDialog) BeginClose() {}
func (consoleDialog) Hide()       {}
