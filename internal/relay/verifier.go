package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNoSecret = errors.New("captcha secret not configured")

// Verdict is the provider's answer for one token.
type Verdict struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Verifier checks a captcha response token. An error means the provider
// could not be asked; a rejected token is a Verdict without Success.
type Verifier interface {
	Verify(ctx context.Context, secret, token, remoteIP string) (Verdict, error)
}

// Recaptcha talks to the siteverify endpoint.
type Recaptcha struct {
	URL    string
	client *http.Client
}

func NewRecaptcha(verifyURL string) *Recaptcha {
	return &Recaptcha{
		URL:    verifyURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Recaptcha) Verify(ctx context.Context, secret, token, remoteIP string) (Verdict, error) {
	if secret == "" {
		return Verdict{}, ErrNoSecret
	}

	data := url.Values{}
	data.Set("secret", secret)
	data.Set("response", token)
	if remoteIP != "" {
		data.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, strings.NewReader(data.Encode()))
	if err != nil {
		return Verdict{}, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to verify captcha: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("siteverify answered HTTP %d", resp.StatusCode)
	}

	var v Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Verdict{}, fmt.Errorf("failed to parse siteverify response: %w", err)
	}
	return v, nil
}
