// Package relay is a reference worker for the contact form: it verifies
// captcha tokens and mails submitted messages. The form treats whatever
// answers at its endpoints as a black box; this is one such answer.
package relay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/remote"
	"github.com/nazarhussain/contact-courier/internal/validate"
)

// Error codes in the "error" field of a failed response.
const (
	CodeUnknownSite      = "unknown_site"
	CodeOriginNotAllowed = "origin_not_allowed"
	CodeTooLarge         = "payload_too_large"
	CodeUnauthorized     = "unauthorized"
	CodeBadRequest       = "bad_request"
	CodeUnsupported      = "unsupported_content_type"
	CodeInvalid          = "invalid_submission"
	CodeMissingCaptcha   = "missing_captcha"
	CodeCaptchaFailed    = "captcha_failed"
	CodeVerifyFailed     = "verify_unavailable"
	CodeTokenStore       = "token_store_unavailable"
	CodeSendFailed       = "send_failed"
)

type Server struct {
	cfg       *Config
	verifier  Verifier
	tokens    TokenStore
	mailer    *Mailer
	validator *validate.Validator
	metrics   *Metrics
	logger    *slog.Logger
}

type Option func(*Server)

func WithVerifier(v Verifier) Option     { return func(s *Server) { s.verifier = v } }
func WithTokenStore(t TokenStore) Option { return func(s *Server) { s.tokens = t } }
func WithMailer(m *Mailer) Option        { return func(s *Server) { s.mailer = m } }
func WithMetrics(m *Metrics) Option      { return func(s *Server) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(cfg *Config, opts ...Option) (*Server, error) {
	v, err := validate.New(validate.WithReservedDomains(cfg.ReservedDomains))
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		validator: v,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.verifier == nil {
		s.verifier = NewRecaptcha(cfg.RecaptchaVerifyURL)
	}
	if s.tokens == nil {
		s.tokens = NewMemoryTokens()
	}
	if s.mailer == nil {
		s.mailer = NewMailer(cfg.MailPerMinute)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	return s, nil
}

// Routes serves the per-site paths and the well-known /api paths, which
// belong to DEFAULT_SITE.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(SecHeaders, RequestLogger(s.logger))

	r.Get("/health", HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	for _, p := range []string{"/v1/verify/{site}", "/api/verify"} {
		r.Post(p, s.HandleVerify)
		r.Options(p, s.handlePreflight)
	}
	for _, p := range []string{"/v1/contact/{site}", "/api/contact"} {
		r.Post(p, s.HandleContact)
		r.Options(p, s.handlePreflight)
	}
	return r
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.site(w, r)
	if !ok {
		return
	}
	if !s.allowOrigin(w, r, cs) {
		writeError(w, http.StatusForbidden, CodeOriginNotAllowed, nil)
		return
	}
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Signature, X-Request-ID")
	w.WriteHeader(http.StatusNoContent)
}

type verifyRequest struct {
	Token string `json:"token"`
	Page  string `json:"page"`
}

// HandleVerify checks a token with the provider and remembers it for the
// contact call that follows.
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.LoggerOr(ctx, s.logger)

	cs, body, ok := s.admit(w, r)
	if !ok {
		return
	}

	var p verifyRequest
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, nil)
		return
	}
	token := strings.TrimSpace(p.Token)
	if token == "" {
		s.metrics.verification(cs.Key, "missing")
		writeError(w, http.StatusBadRequest, CodeMissingCaptcha, nil)
		return
	}

	if !s.checkCaptcha(ctx, w, r, cs, token, s.metrics.verification) {
		return
	}
	if err := s.tokens.Mark(ctx, cs.Key, token, s.cfg.TokenTTL); err != nil {
		log.Error("relay: remember verified token", "err", err)
		s.metrics.verification(cs.Key, "store_error")
		writeError(w, http.StatusServiceUnavailable, CodeTokenStore, nil)
		return
	}

	s.metrics.verification(cs.Key, "ok")
	log.Info("relay: captcha verified", "site", cs.Key, "page", p.Page)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleContact validates and mails one message. A token already verified
// through HandleVerify is consumed; any other token is verified here.
func (s *Server) HandleContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.LoggerOr(ctx, s.logger)

	cs, body, ok := s.admit(w, r)
	if !ok {
		return
	}

	p, status, code := s.decodeContact(r, body)
	if code != "" {
		writeError(w, status, code, nil)
		return
	}

	if p.Website != "" {
		s.metrics.submission(cs.Key, "honeypot")
		writeError(w, http.StatusBadRequest, CodeInvalid, nil)
		return
	}

	in := validate.Input{Name: p.Name, Email: p.Email, Message: p.Message, CaptchaToken: strings.TrimSpace(p.CaptchaToken)}
	if err := s.validator.Validate(in); err != nil {
		code := CodeInvalid
		var verr *validate.Error
		if errors.As(err, &verr) {
			code = "invalid_" + string(verr.Field)
			if verr.Field == validate.FieldCaptcha {
				code = CodeMissingCaptcha
			}
		}
		s.metrics.submission(cs.Key, "invalid")
		writeError(w, http.StatusBadRequest, code, nil)
		return
	}

	verified, err := s.tokens.Consume(ctx, cs.Key, in.CaptchaToken)
	if err != nil {
		log.Warn("relay: token store lookup failed, verifying directly", "err", err)
	}
	if !verified && !s.checkCaptcha(ctx, w, r, cs, in.CaptchaToken, s.metrics.submission) {
		return
	}

	n := validate.Normalize(in)
	p.Name, p.Email, p.Message = n.Name, n.Email, n.Message

	start := time.Now()
	err = s.mailer.Send(ctx, cs, p, clientIP(r))
	s.metrics.MailDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("relay: send failed", "site", cs.Key, "err", err)
		s.metrics.submission(cs.Key, "send_failed")
		writeError(w, http.StatusBadGateway, CodeSendFailed, nil)
		return
	}

	s.metrics.submission(cs.Key, "ok")
	log.Info("relay: message sent", "site", cs.Key, "submission_id", p.SubmissionID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "success": true, "message": "sent"})
}

// admit runs the checks shared by both endpoints: known site, CORS, body
// size and the optional signature. It writes the failure response itself.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) (*SiteCfg, []byte, bool) {
	cs, ok := s.site(w, r)
	if !ok {
		return nil, nil, false
	}
	if !s.allowOrigin(w, r, cs) {
		writeError(w, http.StatusForbidden, CodeOriginNotAllowed, nil)
		return nil, nil, false
	}

	// Read body once for HMAC (and to enforce max size)
	maxBytes := s.cfg.MaxBodyKB * 1024
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(maxBytes)+1))
	r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, nil)
		return nil, nil, false
	}
	if len(body) > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, nil)
		return nil, nil, false
	}

	if cs.Secret != "" && !verifyHMAC(body, cs.Secret, r.Header.Get(remote.SignatureHeader)) {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, nil)
		return nil, nil, false
	}
	return cs, body, true
}

func (s *Server) site(w http.ResponseWriter, r *http.Request) (*SiteCfg, bool) {
	key := chi.URLParam(r, "site")
	if key == "" {
		key = s.cfg.DefaultSite
	}
	cs, ok := s.cfg.Sites[key]
	if !ok {
		writeError(w, http.StatusNotFound, CodeUnknownSite, nil)
		return nil, false
	}
	return cs, true
}

// allowOrigin applies the site's CORS list. Requests without an Origin
// header are not from a browser and pass.
func (s *Server) allowOrigin(w http.ResponseWriter, r *http.Request, cs *SiteCfg) bool {
	if len(cs.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, ao := range cs.AllowedOrigins {
		if ao == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			return true
		}
		if origin != "" && origin == ao {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			return true
		}
	}
	return origin == ""
}

func (s *Server) decodeContact(r *http.Request, body []byte) (ContactRequest, int, string) {
	var p ContactRequest
	ct := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(ct, "application/json") && s.cfg.AllowJSON:
		if err := json.Unmarshal(body, &p); err != nil {
			return p, http.StatusBadRequest, CodeBadRequest
		}
	case s.cfg.AllowForm:
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err := r.ParseForm(); err != nil {
			return p, http.StatusBadRequest, CodeBadRequest
		}
		p.Name = r.Form.Get("name")
		p.Email = r.Form.Get("email")
		p.Message = r.Form.Get("message")
		p.CaptchaToken = r.Form.Get("captchaToken")
		if p.CaptchaToken == "" {
			p.CaptchaToken = r.Form.Get("g-recaptcha-response")
		}
		p.Website = r.Form.Get("website")
	default:
		return p, http.StatusUnsupportedMediaType, CodeUnsupported
	}
	return p, 0, ""
}

// checkCaptcha asks the provider about token and writes the failure
// response when the answer is not a success.
func (s *Server) checkCaptcha(ctx context.Context, w http.ResponseWriter, r *http.Request, cs *SiteCfg, token string, count func(site, result string)) bool {
	log := logging.LoggerOr(ctx, s.logger)

	v, err := s.verifier.Verify(ctx, cs.RecaptchaSecret, token, clientIP(r))
	if err != nil {
		log.Error("relay: captcha provider unreachable", "err", err)
		count(cs.Key, "verify_error")
		writeError(w, http.StatusBadGateway, CodeVerifyFailed, nil)
		return false
	}
	if !v.Success {
		log.Info("relay: captcha rejected", "site", cs.Key, "codes", v.ErrorCodes)
		count(cs.Key, "captcha_failed")
		codes := v.ErrorCodes
		if codes == nil {
			codes = []string{}
		}
		writeError(w, http.StatusBadRequest, CodeCaptchaFailed, map[string]any{"error-codes": codes})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, details map[string]any) {
	body := map[string]any{"ok": false, "error": code}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func verifyHMAC(body []byte, secret, hexSig string) bool {
	if secret == "" || hexSig == "" {
		return false
	}
	want := remote.Sign(body, []byte(secret))
	// constant-time compare
	return hmac.Equal([]byte(want), []byte(strings.ToLower(hexSig)))
}
