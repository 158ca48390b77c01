package config

import (
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v10"

	"github.com/nazarhussain/contact-courier/env"
	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/remote"
)

// DefaultWorkerBase is the legacy worker. It only serves /api/contact, so
// it is used with the single-hop mode unless CONTACT_MODE says otherwise.
const DefaultWorkerBase = "https://asanrooz-check-captcha.mr-rahimi-kiasari.workers.dev"

// Client configures the contact front-end. Every field comes from the
// environment, optionally seeded from a .env file.
type Client struct {
	WorkerBase string `env:"CONTACT_WORKER_BASE"`
	Site       string `env:"CONTACT_SITE"`

	MessageEndpoint string `env:"CONTACT_MESSAGE_ENDPOINT"`
	MessageFallback string `env:"CONTACT_MESSAGE_FALLBACK"`
	VerifyEndpoint  string `env:"CONTACT_VERIFY_ENDPOINT"`
	VerifyFallback  string `env:"CONTACT_VERIFY_FALLBACK"`

	MessageTimeout time.Duration `env:"CONTACT_MESSAGE_TIMEOUT" envDefault:"20s"`
	VerifyTimeout  time.Duration `env:"CONTACT_VERIFY_TIMEOUT" envDefault:"10s"`
	Mode           string        `env:"CONTACT_MODE"`

	LedgerFile      string   `env:"CONTACT_LEDGER_FILE"`
	KeyPrefix       string   `env:"CONTACT_KEY_PREFIX" envDefault:"asanrooz"`
	Source          string   `env:"CONTACT_SOURCE" envDefault:"asanrooz-landing"`
	PageURL         string   `env:"CONTACT_PAGE_URL" envDefault:"https://asanrooz.ir/#contact"`
	ReservedDomains []string `env:"CONTACT_RESERVED_DOMAINS" envSeparator:"," envDefault:"codbanoo.ir,asanrooz.ir"`

	Diagnostics  bool          `env:"CONTACT_DIAGNOSTICS"`
	Hardening    bool          `env:"CONTACT_HARDENING"`
	AllowConsole bool          `env:"CONTACT_ALLOW_CONSOLE"`
	ModalSettle  time.Duration `env:"CONTACT_MODAL_SETTLE" envDefault:"460ms"`

	SigningSecret string `env:"CONTACT_SIGNING_SECRET"`
	CaptchaToken  string `env:"CONTACT_CAPTCHA_TOKEN"`

	Log logging.Config
}

// Load reads .env files (never overriding the real environment) and parses
// the client configuration.
func Load(dotenv ...string) (*Client, error) {
	if err := env.LoadDotenv(dotenv...); err != nil {
		return nil, err
	}
	cfg := &Client{}
	if err := cenv.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults falls back to the legacy worker when no endpoint is
// configured. Without CONTACT_MODE that worker gets single-hop, anything
// else two-hop.
func (c *Client) applyDefaults() {
	legacy := false
	if strings.TrimSpace(c.WorkerBase) == "" && c.MessageEndpoint == "" {
		c.WorkerBase = DefaultWorkerBase
		legacy = true
	}
	if c.Mode == "" {
		c.Mode = "two-hop"
		if legacy {
			c.Mode = "single-hop"
		}
	}
}

func (c *Client) validate() error {
	switch c.Mode {
	case "two-hop", "single-hop":
	default:
		return fmt.Errorf("CONTACT_MODE must be two-hop or single-hop, got %q", c.Mode)
	}
	if c.MessageTimeout <= 0 || c.VerifyTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.MessageURL().Primary == "" {
		return fmt.Errorf("no message endpoint: set CONTACT_WORKER_BASE or CONTACT_MESSAGE_ENDPOINT")
	}
	if c.Mode == "two-hop" && c.VerifyURL().Primary == "" {
		return fmt.Errorf("two-hop mode needs a verify endpoint: set CONTACT_WORKER_BASE or CONTACT_VERIFY_ENDPOINT")
	}
	return nil
}

// MessageURL resolves the message endpoint. With a site, the per-site path
// is primary and the well-known /api/contact is the fallback; without one
// the well-known path is used alone. Explicit URLs win.
func (c *Client) MessageURL() remote.Endpoint {
	return c.endpoint("contact", c.MessageEndpoint, c.MessageFallback)
}

func (c *Client) VerifyURL() remote.Endpoint {
	return c.endpoint("verify", c.VerifyEndpoint, c.VerifyFallback)
}

func (c *Client) endpoint(op, primary, fallback string) remote.Endpoint {
	base := strings.TrimRight(strings.TrimSpace(c.WorkerBase), "/")
	wellKnown := ""
	if base != "" {
		wellKnown = base + "/api/" + op
	}

	ep := remote.Endpoint{Primary: wellKnown}
	if site := strings.TrimSpace(c.Site); site != "" && base != "" {
		ep = remote.Endpoint{Primary: base + "/v1/" + op + "/" + site, Fallback: wellKnown}
	}
	if primary != "" {
		ep.Primary = primary
	}
	if fallback != "" {
		ep.Fallback = fallback
	}
	if ep.Fallback == ep.Primary {
		ep.Fallback = ""
	}
	return ep
}
