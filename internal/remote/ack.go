package remote

import "strings"

// The worker behind the endpoints has never published a contract; these
// heuristics are everything observed so far. Extend them here and nowhere
// else.

// Acknowledged reports whether a parsed body affirms success through any of
// ok == true, success == true or status == "ok" (any case).
func Acknowledged(body map[string]any) bool {
	if body == nil {
		return false
	}
	if v, ok := body["ok"].(bool); ok && v {
		return true
	}
	if v, ok := body["success"].(bool); ok && v {
		return true
	}
	if v, ok := body["status"].(string); ok && strings.EqualFold(strings.TrimSpace(v), "ok") {
		return true
	}
	return false
}

// EmptyBody reports a body with nothing but whitespace. Some deployments
// answer a delivered message with an empty 200.
func EmptyBody(raw string) bool {
	return strings.TrimSpace(raw) == ""
}

// CaptchaFailure reports whether the body blames the captcha token: an
// error or code of captcha_failed/missing_captcha, an error mentioning
// "captcha", or a non-empty details["error-codes"] list from the provider.
func CaptchaFailure(body map[string]any) bool {
	if body == nil {
		return false
	}
	for _, k := range []string{"error", "code"} {
		v, _ := body[k].(string)
		if v == "captcha_failed" || v == "missing_captcha" {
			return true
		}
	}
	if v, _ := body["error"].(string); strings.Contains(strings.ToLower(v), "captcha") {
		return true
	}
	if details, ok := body["details"].(map[string]any); ok {
		if codes, ok := details["error-codes"].([]any); ok && len(codes) > 0 {
			return true
		}
	}
	return false
}
