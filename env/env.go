package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv loads the first .env file found. CONTACT_ENV (or ENV) selects
// a specific ".env.<name>" that is tried before the plain ".env". Variables
// already present in the process environment are never overridden.
func LoadDotenv(extra ...string) error {
	locations := append([]string{}, extra...)
	name := Env("CONTACT_ENV", os.Getenv("ENV"))
	if name != "" {
		locations = append(locations, ".env."+name)
	}
	locations = append(locations, ".env")

	for _, loc := range locations {
		err := godotenv.Load(loc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", loc, err)
		}
	}
	return nil
}

func Require(k string) (string, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return "", fmt.Errorf("missing env %s", k)
	}
	return v, nil
}

func Env(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func EnvInt(k string, d int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d, fmt.Errorf("env %s must be int", k)
	}
	return n, nil
}

func EnvBool(k string, d bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	b, ok := ParseBool(v)
	if !ok {
		return d, fmt.Errorf("env %s must be boolean", k)
	}
	return b, nil
}

// ParseBool accepts the usual spellings of yes and no.
func ParseBool(v string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, true
	case "0", "f", "false", "n", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// List splits a comma separated value, dropping blanks.
func List(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ToEnvKey(s string) string {
	// Uppercase and replace non-alnum with underscore
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
