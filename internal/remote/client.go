// Package remote talks to the contact worker: captcha verification and
// message submission. Every call is a single JSON POST bounded by its own
// timeout, and every answer is folded into an Outcome.
package remote

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/meta"
)

const (
	DefaultVerifyTimeout  = 10 * time.Second
	DefaultMessageTimeout = 20 * time.Second

	SignatureHeader = "X-Signature"
	RequestIDHeader = "X-Request-ID"
)

var (
	ErrTimeout   = errors.New("request timed out")
	ErrTransport = errors.New("transport failure")
)

func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// Endpoint is a primary URL and an optional fallback tried once when the
// primary answers 404 or 405.
type Endpoint struct {
	Primary  string
	Fallback string
}

type Headers struct {
	CFRay       string
	Server      string
	Date        string
	ContentType string
}

// Response is one raw exchange. Body is nil when the text is not a JSON
// object. Err is set only when no HTTP response arrived and wraps
// ErrTimeout or ErrTransport.
type Response struct {
	URL        string
	StatusCode int
	Body       map[string]any
	Raw        string
	Headers    Headers
	Err        error
}

// Succeeded reports a transport-level success: a response arrived with a
// 2xx status.
func (r *Response) Succeeded() bool {
	return r != nil && r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

type Kind int

const (
	Accepted Kind = iota
	Rejected
	NetworkFailure
	TimedOut
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case NetworkFailure:
		return "network_failure"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the normalized result of a verify or submit operation.
type Outcome struct {
	Kind            Kind
	CaptchaRejected bool
	Response        *Response
}

func (o Outcome) OK() bool { return o.Kind == Accepted }

// Message is the submission body: the validated fields, the captcha token
// and client details for spam triage.
type Message struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Message      string `json:"message"`
	CaptchaToken string `json:"captchaToken"`
	meta.Info
	Source       string `json:"source"`
	SubmissionID string `json:"submissionId"`
}

type verifyRequest struct {
	Token string `json:"token"`
	Page  string `json:"page"`
}

type Client struct {
	http    *http.Client
	verify  Endpoint
	message Endpoint

	verifyTimeout  time.Duration
	messageTimeout time.Duration

	secret []byte
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeouts(verify, message time.Duration) Option {
	return func(c *Client) {
		if verify > 0 {
			c.verifyTimeout = verify
		}
		if message > 0 {
			c.messageTimeout = message
		}
	}
}

// WithSigningSecret signs every body with hex(HMAC-SHA256(body, secret)) in
// the X-Signature header.
func WithSigningSecret(secret string) Option {
	return func(c *Client) {
		if secret != "" {
			c.secret = []byte(secret)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(verify, message Endpoint, opts ...Option) *Client {
	c := &Client{
		http:           &http.Client{},
		verify:         verify,
		message:        message,
		verifyTimeout:  DefaultVerifyTimeout,
		messageTimeout: DefaultMessageTimeout,
		logger:         logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestIDKey struct{}

// WithRequestID tags outgoing calls made with ctx with an X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// VerifyCaptcha asks the worker to check a token. Only an affirmative
// acknowledgment counts; an empty body does not.
func (c *Client) VerifyCaptcha(ctx context.Context, token, page string) Outcome {
	resp := c.post(ctx, c.verify, verifyRequest{Token: token, Page: page}, c.verifyTimeout)
	return c.outcome(ctx, "verify", resp, Acknowledged(resp.Body))
}

// SubmitMessage delivers the message. An empty 2xx body is accepted.
func (c *Client) SubmitMessage(ctx context.Context, msg Message) Outcome {
	resp := c.post(ctx, c.message, msg, c.messageTimeout)
	return c.outcome(ctx, "message", resp, Acknowledged(resp.Body) || EmptyBody(resp.Raw))
}

func (c *Client) outcome(ctx context.Context, op string, resp *Response, acked bool) Outcome {
	o := Outcome{Response: resp, CaptchaRejected: CaptchaFailure(resp.Body)}
	switch {
	case resp.Err != nil && IsTimeout(resp.Err):
		o.Kind = TimedOut
	case resp.Err != nil:
		o.Kind = NetworkFailure
	case resp.Succeeded() && acked:
		o.Kind = Accepted
	default:
		o.Kind = Rejected
	}

	logger := c.loggerFor(ctx)
	logger.Debug("remote: "+op+" finished",
		"outcome", o.Kind.String(),
		"url", resp.URL,
		"status", resp.StatusCode,
		"cf_ray", resp.Headers.CFRay,
		"captcha_rejected", o.CaptchaRejected,
		"raw", truncate(resp.Raw, rawLimit),
	)
	return o
}

func (c *Client) post(ctx context.Context, ep Endpoint, payload any, timeout time.Duration) *Response {
	resp := c.Call(ctx, ep.Primary, payload, timeout)
	if ep.Fallback == "" || resp.Err != nil {
		return resp
	}
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		return resp
	}
	c.loggerFor(ctx).Info("remote: primary endpoint unavailable, trying fallback",
		"primary", ep.Primary, "status", resp.StatusCode, "fallback", ep.Fallback)
	return c.Call(ctx, ep.Fallback, payload, timeout)
}

// Call POSTs payload as JSON to url and cancels the request once timeout
// elapses. The body is read as text first and then parsed opportunistically.
func (c *Client) Call(ctx context.Context, url string, payload any, timeout time.Duration) *Response {
	resp := &Response{URL: url}

	body, err := json.Marshal(payload)
	if err != nil {
		resp.Err = fmt.Errorf("%w: encode payload: %v", ErrTransport, err)
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		resp.Err = fmt.Errorf("%w: build request: %v", ErrTransport, err)
		return resp
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		req.Header.Set(RequestIDHeader, id)
	}
	if len(c.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(body, c.secret))
	}

	res, err := c.http.Do(req)
	if err != nil {
		resp.Err = classify(ctx, err)
		return resp
	}
	defer res.Body.Close()

	resp.StatusCode = res.StatusCode
	resp.Headers = Headers{
		CFRay:       res.Header.Get("Cf-Ray"),
		Server:      res.Header.Get("Server"),
		Date:        res.Header.Get("Date"),
		ContentType: res.Header.Get("Content-Type"),
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		// a partial body is never an acknowledgment, even on 2xx
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			resp.Err = classify(ctx, err)
		} else {
			resp.Err = fmt.Errorf("%w: read body: %v", ErrTransport, err)
		}
		return resp
	}
	resp.Raw = string(raw)

	var parsed map[string]any
	if json.Unmarshal(raw, &parsed) == nil {
		resp.Body = parsed
	}
	return resp
}

// Sign returns hex(HMAC-SHA256(body, secret)).
func Sign(body, secret []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func (c *Client) loggerFor(ctx context.Context) *slog.Logger {
	return logging.LoggerOr(ctx, c.logger)
}
