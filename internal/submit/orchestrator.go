// Package submit sequences one submission attempt: quarantine check,
// validation, captcha verification, message send, and the dialog that
// reports the result.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nazarhussain/contact-courier/internal/captcha"
	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/meta"
	"github.com/nazarhussain/contact-courier/internal/modal"
	"github.com/nazarhussain/contact-courier/internal/remote"
	"github.com/nazarhussain/contact-courier/internal/validate"
)

var ErrNoForm = errors.New("no contact form mounted")

type Mode string

const (
	TwoHop    Mode = "two-hop"
	SingleHop Mode = "single-hop"
)

// ParseMode maps a configured name onto a Mode. Anything unknown is two-hop.
func ParseMode(s string) Mode {
	if Mode(s) == SingleHop {
		return SingleHop
	}
	return TwoHop
}

type State int32

const (
	Idle State = iota
	CheckingQuarantine
	Validating
	VerifyingCaptcha
	Sending
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingQuarantine:
		return "checking_quarantine"
	case Validating:
		return "validating"
	case VerifyingCaptcha:
		return "verifying_captcha"
	case Sending:
		return "sending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Kind int

const (
	Success Kind = iota
	ValidationFailed
	Quarantined
	CaptchaRejected
	NetworkFailure
	ServerRejected
	// Busy is returned when another attempt is still in flight.
	Busy
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ValidationFailed:
		return "validation_failed"
	case Quarantined:
		return "quarantined"
	case CaptchaRejected:
		return "captcha_rejected"
	case NetworkFailure:
		return "network_failure"
	case ServerRejected:
		return "server_rejected"
	case Busy:
		return "busy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one attempt. Detail is technical and never part
// of the dialog unless diagnostics are on.
type Outcome struct {
	Kind         Kind
	Field        validate.Field
	Reason       validate.Reason
	MinutesLeft  int
	Detail       string
	SubmissionID string
}

type Values struct {
	Name    string
	Email   string
	Message string
}

type Form interface {
	Values() Values
	Reset()
	Focus(field validate.Field)
}

type Control interface {
	Disabled() bool
	SetDisabled(disabled bool)
}

type Scroller interface {
	ScrollToTop()
	ScrollToForm()
}

type Validator interface {
	Validate(in validate.Input) error
}

type Ledger interface {
	IsQuarantined() bool
	MinutesRemaining() int
	RecordSuccess()
}

type Remote interface {
	VerifyCaptcha(ctx context.Context, token, page string) remote.Outcome
	SubmitMessage(ctx context.Context, msg remote.Message) remote.Outcome
}

type Presenter interface {
	Open(req modal.Request)
}

type MetaCollector interface {
	Collect() meta.Info
}

// Deps are the collaborators of an Orchestrator. Control, Scroller, Widget
// and Meta may be nil.
type Deps struct {
	Form      Form
	Control   Control
	Scroller  Scroller
	Widget    captcha.Widget
	Validator Validator
	Ledger    Ledger
	Remote    Remote
	Modal     Presenter
	Meta      MetaCollector
	Logger    *slog.Logger
	NewID     func() string
}

type Config struct {
	Mode        Mode
	Source      string
	PageURL     string
	Diagnostics bool
}

type Orchestrator struct {
	d   Deps
	cfg Config

	inFlight atomic.Bool
	state    atomic.Int32
}

func New(d Deps, cfg Config) (*Orchestrator, error) {
	if d.Form == nil {
		return nil, ErrNoForm
	}
	if d.Validator == nil || d.Ledger == nil || d.Remote == nil || d.Modal == nil {
		return nil, errors.New("submit: validator, ledger, remote and modal are required")
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if cfg.Mode == "" {
		cfg.Mode = TwoHop
	}
	return &Orchestrator{d: d, cfg: cfg}, nil
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) InFlight() bool { return o.inFlight.Load() }

// Submit runs one attempt to completion. A call made while another attempt
// is in flight returns Busy and touches nothing.
func (o *Orchestrator) Submit(ctx context.Context) Outcome {
	if !o.inFlight.CompareAndSwap(false, true) {
		return Outcome{Kind: Busy}
	}
	defer func() {
		o.setState(Idle)
		o.inFlight.Store(false)
	}()

	if o.d.Scroller != nil {
		o.d.Scroller.ScrollToForm()
	}

	o.setState(CheckingQuarantine)
	if o.d.Ledger.IsQuarantined() {
		mins := o.d.Ledger.MinutesRemaining()
		o.d.Logger.Info("submit: quarantined", "minutes_left", mins)
		return o.fail(Outcome{Kind: Quarantined, MinutesLeft: mins}, QuarantineMessage(mins), nil)
	}

	o.setState(Validating)
	values := o.d.Form.Values()
	in := validate.Input{
		Name:         values.Name,
		Email:        values.Email,
		Message:      values.Message,
		CaptchaToken: captcha.Token(o.d.Widget),
	}
	if err := o.d.Validator.Validate(in); err != nil {
		return o.invalid(err)
	}

	if o.d.Control != nil {
		prev := o.d.Control.Disabled()
		o.d.Control.SetDisabled(true)
		defer o.d.Control.SetDisabled(prev)
	}

	id := o.d.NewID()
	logger := o.d.Logger.With("submission_id", id)
	ctx = logging.ContextWithLogger(remote.WithRequestID(ctx, id), logger)

	if o.cfg.Mode == TwoHop {
		o.setState(VerifyingCaptcha)
		res := o.d.Remote.VerifyCaptcha(ctx, in.CaptchaToken, o.cfg.PageURL)
		if !res.OK() {
			captcha.Reset(o.d.Widget)
			kind := CaptchaRejected
			if res.Kind == remote.NetworkFailure || res.Kind == remote.TimedOut {
				kind = NetworkFailure
			}
			logger.Warn("submit: captcha not verified", "remote", res.Kind.String())
			return o.fail(Outcome{Kind: kind, Detail: detail(res), SubmissionID: id}, o.text(MsgNotVerified, res), nil)
		}
	}

	o.setState(Sending)
	res := o.d.Remote.SubmitMessage(ctx, o.message(in, id))
	if !res.OK() {
		if res.CaptchaRejected {
			captcha.Reset(o.d.Widget)
		}
		kind := ServerRejected
		switch {
		case res.Kind == remote.NetworkFailure || res.Kind == remote.TimedOut:
			kind = NetworkFailure
		case res.CaptchaRejected:
			kind = CaptchaRejected
		}
		logger.Warn("submit: send failed", "remote", res.Kind.String(), "captcha_rejected", res.CaptchaRejected)
		return o.fail(Outcome{Kind: kind, Detail: detail(res), SubmissionID: id}, o.text(MsgSendFailed, res), nil)
	}

	o.d.Ledger.RecordSuccess()
	o.setState(Succeeded)
	logger.Info("submit: message delivered")
	o.d.Modal.Open(modal.Request{
		Title:      SuccessTitle,
		Body:       SuccessText,
		AfterClose: o.resetAfterSuccess,
	})
	return Outcome{Kind: Success, SubmissionID: id}
}

func (o *Orchestrator) resetAfterSuccess() {
	o.d.Form.Reset()
	captcha.Reset(o.d.Widget)
	if o.d.Scroller != nil {
		o.d.Scroller.ScrollToTop()
	}
}

func (o *Orchestrator) invalid(err error) Outcome {
	var verr *validate.Error
	if !errors.As(err, &verr) {
		o.d.Logger.Error("submit: unexpected validation error", "err", err)
		return o.fail(Outcome{Kind: ValidationFailed, Detail: err.Error()}, MsgSendFailed, nil)
	}

	var focus func()
	if verr.Field != validate.FieldCaptcha {
		field := verr.Field
		focus = func() { o.d.Form.Focus(field) }
	}
	o.d.Logger.Debug("submit: validation failed", "field", verr.Field, "reason", verr.Reason)
	return o.fail(Outcome{Kind: ValidationFailed, Field: verr.Field, Reason: verr.Reason}, verr.Message, focus)
}

func (o *Orchestrator) fail(out Outcome, body string, focus func()) Outcome {
	o.setState(Failed)
	o.d.Modal.Open(modal.Request{Title: ErrorTitle, Body: body, Focus: focus})
	return out
}

func (o *Orchestrator) message(in validate.Input, id string) remote.Message {
	n := validate.Normalize(in)
	msg := remote.Message{
		Name:         n.Name,
		Email:        n.Email,
		Message:      n.Message,
		CaptchaToken: n.CaptchaToken,
		Source:       o.cfg.Source,
		SubmissionID: id,
	}
	if o.d.Meta != nil {
		msg.Info = o.d.Meta.Collect()
	}
	if msg.Page == "" {
		msg.Page = o.cfg.PageURL
	}
	return msg
}

// text is the generic failure message, with technical details appended
// only when diagnostics are on.
func (o *Orchestrator) text(generic string, res remote.Outcome) string {
	if !o.cfg.Diagnostics {
		return generic
	}
	return remote.Describe(generic, res.Response)
}

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

func detail(res remote.Outcome) string {
	r := res.Response
	if r == nil {
		return res.Kind.String()
	}
	if r.Err != nil {
		return fmt.Sprintf("%s %s: %v", res.Kind, r.URL, r.Err)
	}
	return fmt.Sprintf("%s %s: HTTP %d", res.Kind, r.URL, r.StatusCode)
}
