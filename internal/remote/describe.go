package remote

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const rawLimit = 800

// Describe appends the technical details of resp to a user-facing prefix.
// It is only used when diagnostics are switched on.
func Describe(prefix string, resp *Response) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("\n\nجزئیات فنی:\n")

	if resp == nil {
		b.WriteString("raw: (empty)")
		return b.String()
	}
	if resp.Err != nil {
		fmt.Fprintf(&b, "URL: %s\nNetworkError: %v", orDash(resp.URL), resp.Err)
		return b.String()
	}

	fmt.Fprintf(&b, "URL: %s\nHTTP: %d", orDash(resp.URL), resp.StatusCode)
	if resp.Headers.CFRay != "" {
		fmt.Fprintf(&b, "\nCF-RAY: %s", resp.Headers.CFRay)
	}

	switch {
	case resp.Body != nil:
		for _, k := range []string{"error", "message"} {
			if v, ok := resp.Body[k]; ok && v != nil && v != "" {
				fmt.Fprintf(&b, "\n%s: %v", k, v)
			}
		}
		if d, ok := resp.Body["details"]; ok && d != nil {
			out, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				out = []byte(fmt.Sprint(d))
			}
			fmt.Fprintf(&b, "\ndetails: %s", out)
		}
	case resp.Raw != "":
		fmt.Fprintf(&b, "\nraw: %s", truncate(resp.Raw, rawLimit))
	default:
		b.WriteString("\nraw: (empty)")
	}
	return b.String()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
