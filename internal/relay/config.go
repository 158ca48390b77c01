package relay

import (
	"fmt"
	"os"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v10"
	"github.com/samber/lo"

	"github.com/nazarhussain/contact-courier/env"
	"github.com/nazarhussain/contact-courier/internal/logging"
)

/*
ENV-ONLY CONFIG:
  Global:
    LISTEN_ADDR (default ":3000")
    SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS, SMTP_SSL
    FROM_ADDR, SUBJECT_PREFIX (default "[Contact]")
    RECAPTCHA_SECRET, RECAPTCHA_VERIFY_URL
    TOKEN_TTL (default 5m), REDIS_URL (empty keeps verified tokens in memory)
    MAIL_PER_MINUTE (default 30)
    ALLOW_JSON, ALLOW_FORM (default true), MAX_BODY_KB (default 1024)
    DEFAULT_SITE  // site served by /api/verify and /api/contact
    RESERVED_DOMAINS

  Multi-site:
    SITES="asanrooz,codbanoo"

    For each site, using the SITE key uppercased (non alnum -> _):
      <SITE>_TO (required)
      <SITE>_ALLOWED_ORIGINS="https://a.com,https://b.com"  // "*" allows any
      <SITE>_SUBJECT_PREFIX
      <SITE>_SECRET            // optional HMAC secret; if set, require X-Signature
      <SITE>_RECAPTCHA_SECRET  // overrides RECAPTCHA_SECRET
      <SITE>_SMTP_HOST, _SMTP_PORT, _SMTP_USER, _SMTP_PASS, _SMTP_SSL
*/

type SiteCfg struct {
	Key             string
	To              string
	AllowedOrigins  []string
	SubjectPrefix   string
	Secret          string
	RecaptchaSecret string
	SMTP            SmtpCfg
	FromAddr        string
}

type SmtpCfg struct {
	Host string `env:"SMTP_HOST"`
	Port int    `env:"SMTP_PORT" envDefault:"587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	SSL  bool   `env:"SMTP_SSL"`
}

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`
	AllowJSON  bool   `env:"ALLOW_JSON" envDefault:"true"`
	AllowForm  bool   `env:"ALLOW_FORM" envDefault:"true"`
	MaxBodyKB  int    `env:"MAX_BODY_KB" envDefault:"1024"`

	SMTP          SmtpCfg
	FromAddr      string `env:"FROM_ADDR"`
	SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"[Contact]"`
	MailPerMinute int    `env:"MAIL_PER_MINUTE" envDefault:"30"`

	RecaptchaSecret    string        `env:"RECAPTCHA_SECRET"`
	RecaptchaVerifyURL string        `env:"RECAPTCHA_VERIFY_URL" envDefault:"https://www.google.com/recaptcha/api/siteverify"`
	TokenTTL           time.Duration `env:"TOKEN_TTL" envDefault:"5m"`
	RedisURL           string        `env:"REDIS_URL"`

	DefaultSite     string   `env:"DEFAULT_SITE"`
	ReservedDomains []string `env:"RESERVED_DOMAINS" envSeparator:"," envDefault:"codbanoo.ir,asanrooz.ir"`

	Log logging.Config

	Sites map[string]*SiteCfg
}

// LoadConfig reads the global settings, then one block per key in SITES.
func LoadConfig(dotenv ...string) (*Config, error) {
	if err := env.LoadDotenv(dotenv...); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := cenv.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	sites, err := loadSitesFromEnv(cfg)
	if err != nil {
		return nil, err
	}
	cfg.Sites = sites

	if cfg.DefaultSite == "" && len(sites) == 1 {
		for k := range sites {
			cfg.DefaultSite = k
		}
	}
	if cfg.DefaultSite != "" && sites[cfg.DefaultSite] == nil {
		return nil, fmt.Errorf("DEFAULT_SITE %q is not listed in SITES", cfg.DefaultSite)
	}
	return cfg, nil
}

func loadSitesFromEnv(global *Config) (map[string]*SiteCfg, error) {
	raw := os.Getenv("SITES")
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("SITES is required (comma-separated list of site keys, e.g. SITES=asanrooz,codbanoo)")
	}

	siteByKey := map[string]*SiteCfg{}
	for _, key := range env.List(raw) {
		uc := env.ToEnvKey(key) // e.g., asanrooz -> ASANROOZ
		to := os.Getenv(uc + "_TO")
		if strings.TrimSpace(to) == "" {
			return nil, fmt.Errorf("missing %s_TO for site %q", uc, key)
		}

		smtp := global.SMTP
		if v := os.Getenv(uc + "_SMTP_HOST"); v != "" {
			port, err := env.EnvInt(uc+"_SMTP_PORT", global.SMTP.Port)
			if err != nil {
				return nil, err
			}
			ssl, err := env.EnvBool(uc+"_SMTP_SSL", global.SMTP.SSL)
			if err != nil {
				return nil, err
			}
			smtp = SmtpCfg{
				Host: v,
				Port: port,
				User: env.Env(uc+"_SMTP_USER", global.SMTP.User),
				Pass: env.Env(uc+"_SMTP_PASS", global.SMTP.Pass),
				SSL:  ssl,
			}
		}
		if smtp.Host == "" {
			return nil, fmt.Errorf("no SMTP host for site %q: set SMTP_HOST or %s_SMTP_HOST", key, uc)
		}

		siteByKey[key] = &SiteCfg{
			Key:             key,
			To:              to,
			AllowedOrigins:  env.List(os.Getenv(uc + "_ALLOWED_ORIGINS")),
			SubjectPrefix:   env.Env(uc+"_SUBJECT_PREFIX", global.SubjectPrefix),
			Secret:          os.Getenv(uc + "_SECRET"),
			RecaptchaSecret: env.Env(uc+"_RECAPTCHA_SECRET", global.RecaptchaSecret),
			FromAddr:        lo.CoalesceOrEmpty(global.FromAddr, smtp.User),
			SMTP:            smtp,
		}
	}
	return siteByKey, nil
}
