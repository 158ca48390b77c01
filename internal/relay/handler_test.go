package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jordan-wright/email"

	"github.com/nazarhussain/contact-courier/internal/remote"
	"github.com/nazarhussain/contact-courier/internal/validate"
)

const testMessage = "سلام، لطفا درباره‌ی همکاری با ما تماس بگیرید. ممنون از شما."

type stubVerifier struct {
	mu      sync.Mutex
	verdict Verdict
	err     error
	tokens  []string
}

func (v *stubVerifier) Verify(_ context.Context, secret, token, _ string) (Verdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = append(v.tokens, token)
	if secret == "" {
		return Verdict{}, ErrNoSecret
	}
	return v.verdict, v.err
}

func (v *stubVerifier) calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tokens)
}

type mailbox struct {
	mu   sync.Mutex
	sent []*email.Email
	err  error
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func setupTestServer(t *testing.T) (*Server, *Config, *stubVerifier, *mailbox) {
	t.Helper()

	cfg := &Config{
		AllowJSON:       true,
		AllowForm:       true,
		MaxBodyKB:       4,
		TokenTTL:        time.Minute,
		DefaultSite:     "asanrooz",
		ReservedDomains: validate.DefaultReservedDomains,
		Sites: map[string]*SiteCfg{
			"asanrooz": {
				Key:             "asanrooz",
				To:              "ops@example.com",
				SubjectPrefix:   "[Contact]",
				FromAddr:        "noreply@example.com",
				RecaptchaSecret: "provider-secret",
				SMTP:            SmtpCfg{Host: "smtp.example.com", Port: 587, User: "user", Pass: "pass"},
			},
		},
	}

	verifier := &stubVerifier{verdict: Verdict{Success: true}}
	box := &mailbox{}

	prevSend := sendEmailFunc
	sendEmailFunc = func(site *SiteCfg, e *email.Email) error {
		box.mu.Lock()
		defer box.mu.Unlock()
		if box.err != nil {
			return box.err
		}
		box.sent = append(box.sent, e)
		return nil
	}
	t.Cleanup(func() { sendEmailFunc = prevSend })

	s, err := NewServer(cfg, WithVerifier(verifier))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s, cfg, verifier, box
}

func contactBody(token string) string {
	b, _ := json.Marshal(map[string]any{
		"name":         "سارا احمدی",
		"email":        "sara@example.com",
		"message":      testMessage,
		"captchaToken": token,
		"source":       "asanrooz-landing",
		"submissionId": "sub-1",
		"userAgent":    "test-agent",
	})
	return string(b)
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestVerifyThenContactConsumesToken(t *testing.T) {
	s, _, verifier, box := setupTestServer(t)
	h := s.Routes()

	rec, resp := do(t, h, http.MethodPost, "/v1/verify/asanrooz", "application/json", `{"token":"tok-1","page":"https://asanrooz.ir/"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}
	if !remote.Acknowledged(resp) {
		t.Fatalf("verify: expected acknowledgment, got %v", resp)
	}

	rec, resp = do(t, h, http.MethodPost, "/v1/contact/asanrooz", "application/json", contactBody("tok-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("contact: expected 200, got %d (%v)", rec.Code, resp)
	}
	if ok, _ := resp["success"].(bool); !ok {
		t.Fatalf("contact: expected success=true, got %v", resp)
	}
	if got := verifier.calls(); got != 1 {
		t.Fatalf("expected the provider to be asked once, got %d", got)
	}
	if box.count() != 1 {
		t.Fatalf("expected one email, got %d", box.count())
	}

	e := box.sent[0]
	if got, want := e.Subject, "[Contact] New contact"; got != want {
		t.Fatalf("unexpected subject: got %q want %q", got, want)
	}
	if got, want := e.To[0], "ops@example.com"; got != want {
		t.Fatalf("unexpected recipient: got %q want %q", got, want)
	}
	text := string(e.Text)
	for _, want := range []string{testMessage, "Submission: sub-1", "User-Agent: test-agent"} {
		if !strings.Contains(text, want) {
			t.Fatalf("email body missing %q: %q", want, text)
		}
	}

	// the verified token is gone; a replay goes back to the provider
	verifier.verdict = Verdict{Success: false, ErrorCodes: []string{"timeout-or-duplicate"}}
	rec, resp = do(t, h, http.MethodPost, "/v1/contact/asanrooz", "application/json", contactBody("tok-1"), nil)
	if rec.Code != http.StatusBadRequest || !remote.CaptchaFailure(resp) {
		t.Fatalf("replay: expected captcha failure, got %d %v", rec.Code, resp)
	}
}

func TestVerifyRejectedTokenReportsErrorCodes(t *testing.T) {
	s, _, verifier, _ := setupTestServer(t)
	verifier.verdict = Verdict{Success: false, ErrorCodes: []string{"invalid-input-response"}}

	rec, resp := do(t, s.Routes(), http.MethodPost, "/api/verify", "application/json", `{"token":"bad"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp["error"] != CodeCaptchaFailed {
		t.Fatalf("expected captcha_failed, got %v", resp)
	}
	if !remote.CaptchaFailure(resp) {
		t.Fatalf("client heuristics should blame the captcha: %v", resp)
	}
	if remote.Acknowledged(resp) {
		t.Fatalf("rejection must not look acknowledged: %v", resp)
	}
}

func TestVerifyMissingToken(t *testing.T) {
	s, _, verifier, _ := setupTestServer(t)

	rec, resp := do(t, s.Routes(), http.MethodPost, "/api/verify", "application/json", `{"token":"  "}`, nil)
	if rec.Code != http.StatusBadRequest || resp["error"] != CodeMissingCaptcha {
		t.Fatalf("expected missing_captcha, got %d %v", rec.Code, resp)
	}
	if verifier.calls() != 0 {
		t.Fatal("provider should not be asked about an empty token")
	}
}

func TestVerifyProviderDown(t *testing.T) {
	s, _, verifier, _ := setupTestServer(t)
	verifier.err = errors.New("dial tcp: connection refused")

	rec, resp := do(t, s.Routes(), http.MethodPost, "/api/verify", "application/json", `{"token":"tok"}`, nil)
	if rec.Code != http.StatusBadGateway || resp["error"] != CodeVerifyFailed {
		t.Fatalf("expected 502 verify_unavailable, got %d %v", rec.Code, resp)
	}
}

func TestContactSingleHopVerifiesDirectly(t *testing.T) {
	s, _, verifier, box := setupTestServer(t)

	rec, _ := do(t, s.Routes(), http.MethodPost, "/api/contact", "application/json", contactBody("fresh"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if verifier.calls() != 1 || verifier.tokens[0] != "fresh" {
		t.Fatalf("expected a direct verification of the token, got %v", verifier.tokens)
	}
	if box.count() != 1 {
		t.Fatalf("expected one email, got %d", box.count())
	}
}

func TestContactValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		patch func(m map[string]any)
		code  string
	}{
		{"latin name", func(m map[string]any) { m["name"] = "Sara" }, "invalid_name"},
		{"reserved domain", func(m map[string]any) { m["email"] = "x@asanrooz.ir" }, "invalid_email"},
		{"short message", func(m map[string]any) { m["message"] = "کوتاه" }, "invalid_message"},
		{"no captcha", func(m map[string]any) { m["captchaToken"] = "" }, CodeMissingCaptcha},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, verifier, box := setupTestServer(t)

			m := map[string]any{}
			_ = json.Unmarshal([]byte(contactBody("tok")), &m)
			tt.patch(m)
			body, _ := json.Marshal(m)

			rec, resp := do(t, s.Routes(), http.MethodPost, "/api/contact", "application/json", string(body), nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if resp["error"] != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, resp["error"])
			}
			if verifier.calls() != 0 || box.count() != 0 {
				t.Fatal("invalid submissions must not reach the provider or SMTP")
			}
		})
	}
}

func TestContactHoneypot(t *testing.T) {
	s, _, _, box := setupTestServer(t)

	form := url.Values{
		"name":         {"سارا احمدی"},
		"email":        {"sara@example.com"},
		"message":      {testMessage},
		"captchaToken": {"tok"},
		"website":      {"http://spam.example"},
	}
	rec, resp := do(t, s.Routes(), http.MethodPost, "/api/contact", "application/x-www-form-urlencoded", form.Encode(), nil)
	if rec.Code != http.StatusBadRequest || resp["error"] != CodeInvalid {
		t.Fatalf("expected invalid_submission, got %d %v", rec.Code, resp)
	}
	if box.count() != 0 {
		t.Fatal("honeypot submissions must not be mailed")
	}
}

func TestContactFormEncoded(t *testing.T) {
	s, _, _, box := setupTestServer(t)

	form := url.Values{
		"name":                 {"سارا احمدی"},
		"email":                {"sara@example.com"},
		"message":              {testMessage},
		"g-recaptcha-response": {"tok"},
	}
	rec, _ := do(t, s.Routes(), http.MethodPost, "/v1/contact/asanrooz", "application/x-www-form-urlencoded", form.Encode(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if box.count() != 1 {
		t.Fatalf("expected one email, got %d", box.count())
	}
}

func TestContactSendFailure(t *testing.T) {
	s, _, _, box := setupTestServer(t)
	box.err = errors.New("535 authentication failed")

	rec, resp := do(t, s.Routes(), http.MethodPost, "/api/contact", "application/json", contactBody("tok"), nil)
	if rec.Code != http.StatusBadGateway || resp["error"] != CodeSendFailed {
		t.Fatalf("expected 502 send_failed, got %d %v", rec.Code, resp)
	}
}

func TestContactSignatureRequired(t *testing.T) {
	s, cfg, _, _ := setupTestServer(t)
	cfg.Sites["asanrooz"].Secret = "shared"
	h := s.Routes()
	body := contactBody("tok")

	rec, _ := do(t, h, http.MethodPost, "/api/contact", "application/json", body, map[string]string{remote.SignatureHeader: "deadbeef"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: expected 401, got %d", rec.Code)
	}

	sig := remote.Sign([]byte(body), []byte("shared"))
	rec, _ = do(t, h, http.MethodPost, "/api/contact", "application/json", body, map[string]string{remote.SignatureHeader: strings.ToUpper(sig)})
	if rec.Code != http.StatusOK {
		t.Fatalf("good signature: expected 200, got %d", rec.Code)
	}
}

func TestContactCORS(t *testing.T) {
	s, cfg, _, box := setupTestServer(t)
	cfg.Sites["asanrooz"].AllowedOrigins = []string{"https://asanrooz.ir"}
	h := s.Routes()

	rec, _ := do(t, h, http.MethodPost, "/api/contact", "application/json", contactBody("a"), map[string]string{"Origin": "https://asanrooz.ir"})
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed origin: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://asanrooz.ir" {
		t.Fatalf("missing Access-Control-Allow-Origin, got %q", got)
	}

	rec, resp := do(t, h, http.MethodPost, "/api/contact", "application/json", contactBody("b"), map[string]string{"Origin": "https://evil.example"})
	if rec.Code != http.StatusForbidden || resp["error"] != CodeOriginNotAllowed {
		t.Fatalf("blocked origin: expected 403, got %d %v", rec.Code, resp)
	}
	if box.count() != 1 {
		t.Fatalf("expected exactly one email, got %d", box.count())
	}

	rec, _ = do(t, h, http.MethodOptions, "/v1/contact/asanrooz", "", "", map[string]string{"Origin": "https://asanrooz.ir"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-Signature") {
		t.Fatalf("preflight headers: %q", got)
	}
}

func TestRoutingErrors(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	h := s.Routes()

	rec, resp := do(t, h, http.MethodPost, "/v1/contact/unknown", "application/json", contactBody("t"), nil)
	if rec.Code != http.StatusNotFound || resp["error"] != CodeUnknownSite {
		t.Fatalf("unknown site: expected 404, got %d %v", rec.Code, resp)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/contact", "", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET contact: expected 405, got %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodPost, "/api/contact", "application/json", strings.Repeat("x", 5*1024), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("large body: expected 413, got %d", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s, _, _, _ := setupTestServer(t)

	rec, _ := do(t, s.Routes(), http.MethodGet, "/health", "", "", map[string]string{remote.RequestIDHeader: "sub-42"})
	if got := rec.Header().Get(remote.RequestIDHeader); got != "sub-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing security headers, got %q", got)
	}
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, "ok") {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestMetricsExposed(t *testing.T) {
	s, _, _, _ := setupTestServer(t)
	h := s.Routes()

	do(t, h, http.MethodPost, "/api/contact", "application/json", contactBody("tok"), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `contact_relay_submissions_total{result="ok",site="asanrooz"} 1`) {
		t.Fatalf("submission counter missing:\n%s", body)
	}
}

// The client package talks to a live relay end to end.
func TestRemoteClientAgainstRelay(t *testing.T) {
	s, _, _, box := setupTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	c := remote.New(
		remote.Endpoint{Primary: srv.URL + "/v1/verify/missing", Fallback: srv.URL + "/api/verify"},
		remote.Endpoint{Primary: srv.URL + "/v1/contact/asanrooz"},
	)
	ctx := context.Background()

	// unknown site answers 404 and the client falls back to the well-known path
	if out := c.VerifyCaptcha(ctx, "tok-e2e", "https://asanrooz.ir/"); !out.OK() {
		t.Fatalf("verify: expected accepted, got %v", out.Kind)
	}

	out := c.SubmitMessage(ctx, remote.Message{
		Name:         "سارا احمدی",
		Email:        "sara@example.com",
		Message:      testMessage,
		CaptchaToken: "tok-e2e",
		SubmissionID: "sub-e2e",
	})
	if !out.OK() {
		t.Fatalf("submit: expected accepted, got %v (%s)", out.Kind, out.Response.Raw)
	}
	if box.count() != 1 {
		t.Fatalf("expected one email, got %d", box.count())
	}
}
