package relay

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"golang.org/x/time/rate"

	"github.com/nazarhussain/contact-courier/internal/meta"
)

// ContactRequest is the message body the contact form posts, plus the
// honeypot field of the plain HTML form.
type ContactRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Message      string `json:"message"`
	CaptchaToken string `json:"captchaToken"`
	meta.Info
	Source       string `json:"source"`
	SubmissionID string `json:"submissionId"`
	Website      string `json:"website,omitempty"` // honeypot
}

var sendEmailFunc = func(site *SiteCfg, e *email.Email) error {
	addr := net.JoinHostPort(site.SMTP.Host, strconv.Itoa(site.SMTP.Port))
	auth := smtp.PlainAuth("", site.SMTP.User, site.SMTP.Pass, site.SMTP.Host)
	if site.SMTP.SSL {
		return e.SendWithTLS(addr, auth, nil)
	}
	return e.Send(addr, auth)
}

// Mailer paces outgoing mail so a burst of submissions cannot trip the
// SMTP provider's own limits.
type Mailer struct {
	limiter *rate.Limiter
}

// NewMailer allows perMinute messages a minute; zero or less means no pacing.
func NewMailer(perMinute int) *Mailer {
	if perMinute <= 0 {
		return &Mailer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Mailer{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

func (m *Mailer) Send(ctx context.Context, site *SiteCfg, p ContactRequest, ip string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail pacing: %w", err)
	}
	return sendEmailFunc(site, compose(site, p, ip))
}

func compose(site *SiteCfg, p ContactRequest, ip string) *email.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\nFrom: %s <%s>\nIP: %s\n", site.Key, p.Name, p.Email, ip)
	for _, kv := range [][2]string{
		{"Submission", p.SubmissionID},
		{"Source", p.Source},
		{"Page", p.Page},
		{"Referrer", p.Referrer},
		{"User-Agent", p.UserAgent},
		{"Language", p.Language},
		{"Platform", p.Platform},
		{"Timezone", p.Timezone},
		{"Screen", p.Screen},
		{"Sent at", p.TS},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
		}
	}
	fmt.Fprintf(&b, "\n%s\n", p.Message)

	e := email.NewEmail()
	e.From = site.FromAddr
	e.To = []string{site.To}
	e.ReplyTo = []string{fmt.Sprintf("%s <%s>", p.Name, p.Email)}
	e.Subject = strings.TrimSpace(site.SubjectPrefix + " New contact")
	e.Text = []byte(b.String())
	return e
}
