// Package validate checks the contact form fields before anything leaves the
// machine. Checks run in a fixed order and the first failure wins.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MinNameLetters   = 3
	MinEmailLength   = 7
	MinMessageLength = 30

	zwnj = '\u200c'
)

// DefaultReservedDomains are the organization's own domains. Mail addressed
// from them is a misconfiguration, never a real visitor.
var DefaultReservedDomains = []string{"codbanoo.ir", "asanrooz.ir"}

// Persian is the letter set accepted in names: the Arabic block, which
// carries the Persian alphabet.
var Persian = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0600, Hi: 0x06FF, Stride: 1}},
}

type Field string

const (
	FieldName    Field = "name"
	FieldEmail   Field = "email"
	FieldMessage Field = "message"
	FieldCaptcha Field = "captcha"
)

type Reason string

const (
	ReasonRequired       Reason = "required"
	ReasonScript         Reason = "script"
	ReasonTooFewLetters  Reason = "too_few_letters"
	ReasonInvalid        Reason = "invalid"
	ReasonTooShort       Reason = "too_short"
	ReasonBlank          Reason = "blank"
	ReasonMissingCaptcha Reason = "missing_captcha"
)

// Input is one snapshot of the visible form plus the widget's token.
type Input struct {
	Name         string
	Email        string
	Message      string
	CaptchaToken string
}

// Error is a field-scoped, user-correctable failure. Message is shown verbatim.
type Error struct {
	Field   Field
	Reason  Reason
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type rule struct {
	field   Field
	reason  Reason
	tag     string
	message string
	value   func(Input) string
}

type Validator struct {
	validate *validator.Validate
	script   *unicode.RangeTable
	reserved []string
	rules    []rule
}

type Option func(*Validator)

// WithReservedDomains replaces the default reserved domain list.
func WithReservedDomains(domains []string) Option {
	return func(v *Validator) {
		v.reserved = normalizeDomains(domains)
	}
}

// WithScript replaces the accepted name alphabet.
func WithScript(table *unicode.RangeTable) Option {
	return func(v *Validator) {
		if table != nil {
			v.script = table
		}
	}
}

func New(opts ...Option) (*Validator, error) {
	v := &Validator{
		validate: validator.New(),
		script:   Persian,
		reserved: normalizeDomains(DefaultReservedDomains),
	}
	for _, opt := range opts {
		opt(v)
	}

	custom := map[string]validator.Func{
		"script": func(fl validator.FieldLevel) bool {
			return v.onlyScript(fl.Field().String())
		},
		"letters": func(fl validator.FieldLevel) bool {
			min, err := strconv.Atoi(fl.Param())
			if err != nil {
				return false
			}
			return CountLetters(fl.Field().String()) >= min
		},
		"contact_email": func(fl validator.FieldLevel) bool {
			return ValidEmail(fl.Field().String(), v.reserved)
		},
		"nonblank": func(fl validator.FieldLevel) bool {
			return strings.IndexFunc(fl.Field().String(), isVisible) >= 0
		},
	}
	for tag, fn := range custom {
		if err := v.validate.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("register %s validation: %w", tag, err)
		}
	}

	name := func(in Input) string { return NormalizeSpaces(in.Name) }
	email := func(in Input) string { return strings.TrimSpace(in.Email) }
	message := func(in Input) string { return strings.TrimSpace(in.Message) }

	v.rules = []rule{
		{FieldName, ReasonRequired, "required", MsgNameRequired, name},
		{FieldName, ReasonScript, "script", MsgNameScript, name},
		{FieldName, ReasonTooFewLetters, fmt.Sprintf("letters=%d", MinNameLetters), MsgNameTooShort, name},
		{FieldEmail, ReasonRequired, "required", MsgEmailRequired, email},
		{FieldEmail, ReasonInvalid, "contact_email", MsgEmailInvalid, email},
		{FieldMessage, ReasonRequired, "required", MsgMessageRequired, message},
		{FieldMessage, ReasonTooShort, fmt.Sprintf("min=%d", MinMessageLength), MsgMessageTooShort, message},
		// Redundant with the length check for ordinary text; kept for
		// inputs padded with characters that count toward length.
		{FieldMessage, ReasonBlank, "nonblank", MsgMessageBlank, func(in Input) string { return in.Message }},
		{FieldCaptcha, ReasonMissingCaptcha, "required", MsgCaptchaRequired, func(in Input) string { return in.CaptchaToken }},
	}
	return v, nil
}

// Validate returns nil or an *Error describing the first failing rule.
func (v *Validator) Validate(in Input) error {
	for _, r := range v.rules {
		if err := v.validate.Var(r.value(in), r.tag); err != nil {
			return &Error{Field: r.field, Reason: r.reason, Message: r.message}
		}
	}
	return nil
}

// Normalize returns the field values in the shape they are sent in.
func Normalize(in Input) Input {
	return Input{
		Name:         NormalizeSpaces(in.Name),
		Email:        strings.TrimSpace(in.Email),
		Message:      strings.TrimSpace(in.Message),
		CaptchaToken: in.CaptchaToken,
	}
}

// NormalizeSpaces collapses whitespace runs into one space and trims the ends.
func NormalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CountLetters counts runes that are neither whitespace nor zero-width non-joiners.
func CountLetters(s string) int {
	n := 0
	for _, r := range s {
		if r == zwnj || unicode.IsSpace(r) {
			continue
		}
		n++
	}
	return n
}

// ValidEmail applies the site's address rules. Reserved domains and their
// subdomains are rejected; comparison is case-insensitive.
func ValidEmail(email string, reserved []string) bool {
	v := strings.TrimSpace(email)
	if utf8.RuneCountInString(v) < MinEmailLength {
		return false
	}

	local, domain, ok := strings.Cut(v, "@")
	if !ok || strings.Contains(domain, "@") {
		return false
	}
	if local == "" || domain == "" {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}

	d := strings.ToLower(domain)
	for _, r := range normalizeDomains(reserved) {
		if d == r || strings.HasSuffix(d, "."+r) {
			return false
		}
	}
	return true
}

// Counter reports the message length shown under the field and whether the
// minimum has been reached.
func Counter(message string) (n int, reached bool) {
	n = utf8.RuneCountInString(message)
	return n, n >= MinMessageLength
}

func (v *Validator) onlyScript(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == zwnj || unicode.IsSpace(r) || unicode.Is(v.script, r) {
			continue
		}
		return false
	}
	return true
}

func isVisible(r rune) bool {
	return !unicode.IsSpace(r)
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.Trim(strings.TrimSpace(d), "."))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
