package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitMessageAcknowledgments(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"ok true", 200, `{"ok":true}`, Accepted},
		{"success true", 200, `{"success":true,"message":"sent"}`, Accepted},
		{"status ok", 200, `{"status":"OK"}`, Accepted},
		{"empty body", 200, "", Accepted},
		{"whitespace body", 200, "  \n", Accepted},
		{"ok false", 200, `{"ok":false}`, Rejected},
		{"ok as string", 200, `{"ok":"true"}`, Rejected},
		{"plain text", 200, "thanks", Rejected},
		{"server error", 500, `{"ok":true}`, Rejected},
		{"server error empty", 502, "", Rejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, jsonHandler(tt.status, tt.body))
			c := New(Endpoint{}, Endpoint{Primary: srv.URL})

			o := c.SubmitMessage(context.Background(), Message{Name: "علی"})
			assert.Equal(t, tt.want, o.Kind)
			assert.Equal(t, tt.status, o.Response.StatusCode)
			assert.Equal(t, tt.body, o.Response.Raw)
		})
	}
}

func TestVerifyRequiresAffirmativeAck(t *testing.T) {
	empty := newServer(t, jsonHandler(200, ""))
	c := New(Endpoint{Primary: empty.URL}, Endpoint{})
	assert.Equal(t, Rejected, c.VerifyCaptcha(context.Background(), "tok", "page").Kind)

	var got verifyRequest
	ok := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	c = New(Endpoint{Primary: ok.URL}, Endpoint{})
	assert.True(t, c.VerifyCaptcha(context.Background(), "tok", "https://asanrooz.ir/").OK())
	assert.Equal(t, verifyRequest{Token: "tok", Page: "https://asanrooz.ir/"}, got)
}

func TestCaptchaRejectionIsFlagged(t *testing.T) {
	bodies := []string{
		`{"ok":false,"error":"captcha_failed"}`,
		`{"ok":false,"code":"missing_captcha"}`,
		`{"ok":false,"error":"Captcha expired"}`,
		`{"ok":false,"error":"bad","details":{"error-codes":["timeout-or-duplicate"]}}`,
	}
	for _, body := range bodies {
		srv := newServer(t, jsonHandler(400, body))
		o := New(Endpoint{}, Endpoint{Primary: srv.URL}).SubmitMessage(context.Background(), Message{})
		assert.Equal(t, Rejected, o.Kind, body)
		assert.True(t, o.CaptchaRejected, body)
	}

	srv := newServer(t, jsonHandler(400, `{"ok":false,"error":"send_failed","details":{"error-codes":[]}}`))
	o := New(Endpoint{}, Endpoint{Primary: srv.URL}).SubmitMessage(context.Background(), Message{})
	assert.False(t, o.CaptchaRejected)
}

func TestNonJSONBodyIsKeptAsText(t *testing.T) {
	srv := newServer(t, jsonHandler(500, "<html>bad gateway</html>"))
	resp := New(Endpoint{}, Endpoint{}).Call(context.Background(), srv.URL, map[string]string{}, time.Second)

	require.NoError(t, resp.Err)
	assert.Nil(t, resp.Body)
	assert.Equal(t, "<html>bad gateway</html>", resp.Raw)
	assert.False(t, resp.Succeeded())
}

func TestFallbackOnNotFoundOrMethodNotAllowed(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusMethodNotAllowed} {
		var fallbackHits atomic.Int32
		primary := newServer(t, jsonHandler(status, ""))
		fallback := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fallbackHits.Add(1)
			_, _ = io.WriteString(w, `{"ok":true}`)
		}))

		c := New(Endpoint{}, Endpoint{Primary: primary.URL, Fallback: fallback.URL})
		o := c.SubmitMessage(context.Background(), Message{})
		assert.True(t, o.OK())
		assert.Equal(t, fallback.URL, o.Response.URL)
		assert.EqualValues(t, 1, fallbackHits.Load())
	}
}

func TestNoFallbackOnOtherFailures(t *testing.T) {
	var fallbackHits atomic.Int32
	primary := newServer(t, jsonHandler(http.StatusInternalServerError, `{"ok":false}`))
	fallback := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackHits.Add(1)
	}))

	c := New(Endpoint{}, Endpoint{Primary: primary.URL, Fallback: fallback.URL})
	o := c.SubmitMessage(context.Background(), Message{})
	assert.Equal(t, Rejected, o.Kind)
	assert.Zero(t, fallbackHits.Load())
}

func TestTimeoutResolvesAsTimedOut(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() { close(release) })

	const timeout = 100 * time.Millisecond
	c := New(Endpoint{}, Endpoint{Primary: srv.URL}, WithTimeouts(0, timeout))

	start := time.Now()
	o := c.SubmitMessage(context.Background(), Message{})
	elapsed := time.Since(start)

	assert.Equal(t, TimedOut, o.Kind)
	assert.True(t, IsTimeout(o.Response.Err))
	assert.ErrorIs(t, o.Response.Err, ErrTimeout)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestConnectionFailureIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o := New(Endpoint{}, Endpoint{Primary: url}).SubmitMessage(context.Background(), Message{})
	assert.Equal(t, NetworkFailure, o.Kind)
	assert.ErrorIs(t, o.Response.Err, ErrTransport)
	assert.Zero(t, o.Response.StatusCode)
}

func TestTruncatedBodyIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 64\r\n\r\n{\"ok\":")
		_ = buf.Flush()
	}))
	defer srv.Close()

	o := New(Endpoint{}, Endpoint{Primary: srv.URL}).SubmitMessage(context.Background(), Message{})
	assert.Equal(t, NetworkFailure, o.Kind)
	assert.ErrorIs(t, o.Response.Err, ErrTransport)
	assert.False(t, IsTimeout(o.Response.Err))
	assert.Equal(t, http.StatusOK, o.Response.StatusCode)
	assert.False(t, o.OK())
}

func TestRequestHeadersAndSignature(t *testing.T) {
	const secret = "s3cret"
	var (
		sig, reqID, ctype string
		body              []byte
	)
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(SignatureHeader)
		reqID = r.Header.Get(RequestIDHeader)
		ctype = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("CF-RAY", "8a1b2c3d-FRA")
		w.Header().Set("Server", "cloudflare")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))

	c := New(Endpoint{}, Endpoint{Primary: srv.URL}, WithSigningSecret(secret))
	ctx := WithRequestID(context.Background(), "req-1")
	o := c.SubmitMessage(ctx, Message{Name: "علی", SubmissionID: "req-1", Source: "asanrooz-landing"})

	require.True(t, o.OK())
	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, "req-1", reqID)
	assert.Equal(t, Sign(body, []byte(secret)), sig)
	assert.Equal(t, "8a1b2c3d-FRA", o.Response.Headers.CFRay)
	assert.Equal(t, "cloudflare", o.Response.Headers.Server)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "asanrooz-landing", decoded["source"])
	assert.Equal(t, "req-1", decoded["submissionId"])
	assert.Contains(t, decoded, "userAgent", "client details are flattened into the body")
}

func TestUnsignedByDefault(t *testing.T) {
	var sig string
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(SignatureHeader)
	}))
	New(Endpoint{}, Endpoint{Primary: srv.URL}).SubmitMessage(context.Background(), Message{})
	assert.Empty(t, sig)
}

func TestDescribe(t *testing.T) {
	withBody := Describe("failed", &Response{
		URL:        "https://w/api/contact",
		StatusCode: 400,
		Headers:    Headers{CFRay: "ray-1"},
		Body: map[string]any{
			"error":   "captcha_failed",
			"details": map[string]any{"error-codes": []any{"bad"}},
		},
	})
	assert.True(t, strings.HasPrefix(withBody, "failed"))
	assert.Contains(t, withBody, "URL: https://w/api/contact")
	assert.Contains(t, withBody, "HTTP: 400")
	assert.Contains(t, withBody, "CF-RAY: ray-1")
	assert.Contains(t, withBody, "error: captcha_failed")
	assert.Contains(t, withBody, `"error-codes"`)

	raw := Describe("failed", &Response{StatusCode: 502, Raw: strings.Repeat("x", 900)})
	assert.Contains(t, raw, "raw: "+strings.Repeat("x", rawLimit))
	assert.NotContains(t, raw, strings.Repeat("x", rawLimit+1))

	netErr := Describe("failed", &Response{URL: "u", Err: ErrTransport})
	assert.Contains(t, netErr, "NetworkError: transport failure")

	assert.Contains(t, Describe("failed", &Response{StatusCode: 200}), "raw: (empty)")
}
