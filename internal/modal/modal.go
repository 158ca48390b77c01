// Package modal shows one dialog at a time and runs exactly one continuation
// after each close has settled.
package modal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nazarhussain/contact-courier/internal/logging"
)

// DefaultSettle matches the close animation of the dialog.
const DefaultSettle = 460 * time.Millisecond

// View renders the dialog. BeginClose starts the closing transition and Hide
// removes the dialog once it has settled.
type View interface {
	Show(title, body string)
	BeginClose()
	Hide()
}

// Request is one dialog. Focus is the input to return to on close and
// AfterClose replaces that refocus when set.
type Request struct {
	Title      string
	Body       string
	Focus      func()
	AfterClose func()
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func())

func AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

type Presenter struct {
	mu sync.Mutex

	view         View
	settle       time.Duration
	schedule     Scheduler
	scrollToForm func()
	logger       *slog.Logger

	pending *Request
	open    bool
	gen     uint64
	closing chan struct{}
}

type Option func(*Presenter)

func WithSettle(d time.Duration) Option {
	return func(p *Presenter) {
		if d >= 0 {
			p.settle = d
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(p *Presenter) {
		if s != nil {
			p.schedule = s
		}
	}
}

// WithScrollToForm sets the gentle scroll that follows a refocus.
func WithScrollToForm(f func()) Option {
	return func(p *Presenter) { p.scrollToForm = f }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Presenter) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(view View, opts ...Option) *Presenter {
	p := &Presenter{
		view:     view,
		settle:   DefaultSettle,
		schedule: AfterFunc,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open shows req, replacing whatever request is pending. Last caller wins.
func (p *Presenter) Open(req Request) {
	p.mu.Lock()
	r := req
	p.pending = &r
	p.open = true
	p.gen++
	p.closing = nil
	p.mu.Unlock()

	if p.view != nil {
		p.view.Show(req.Title, req.Body)
	}
}

// Close starts the closing transition. After the settle delay the dialog is
// hidden and the continuation of the closed request runs: its AfterClose, or
// else its Focus followed by a scroll back to the form. The returned channel
// is closed once that continuation has returned. Closing a dialog that is
// already closing returns the same channel; closing with nothing open
// returns a closed channel.
func (p *Presenter) Close() <-chan struct{} {
	p.mu.Lock()
	if p.closing != nil {
		done := p.closing
		p.mu.Unlock()
		return done
	}
	if !p.open {
		p.mu.Unlock()
		done := make(chan struct{})
		close(done)
		return done
	}

	req := p.pending
	p.pending = nil
	gen := p.gen
	done := make(chan struct{})
	p.closing = done
	p.mu.Unlock()

	if p.view != nil {
		p.view.BeginClose()
	}
	p.schedule(p.settle, func() { p.settled(gen, req, done) })
	return done
}

func (p *Presenter) settled(gen uint64, req *Request, done chan struct{}) {
	defer close(done)

	p.mu.Lock()
	// a newer Open owns the dialog now; leave it on screen
	current := p.gen == gen
	if current {
		p.open = false
		p.closing = nil
	}
	p.mu.Unlock()

	if current && p.view != nil {
		p.view.Hide()
	}
	p.run(req)
}

func (p *Presenter) run(req *Request) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("modal: continuation panicked", "err", rec)
		}
	}()

	switch {
	case req == nil:
	case req.AfterClose != nil:
		req.AfterClose()
	case req.Focus != nil:
		req.Focus()
		if p.scrollToForm != nil {
			p.scrollToForm()
		}
	}
}

// HandleKey reports whether key was swallowed. Escape never dismisses an
// open dialog; only the acknowledgment control closes it.
func (p *Presenter) HandleKey(key string) bool {
	if key != "esc" && key != "escape" {
		return false
	}
	return p.IsOpen()
}

func (p *Presenter) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}
