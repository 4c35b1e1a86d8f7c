// Package policy scrubs credentials from text that ends up in logs, job
// errors and API responses.
package policy

import "regexp"

var (
	queryPattern  = regexp.MustCompile(`(?i)\b(tok|access_token|client_secret|client_id|api_key|apikey|key)=[^&\s"']+`)
	headerPattern = regexp.MustCompile(`(?i)\b(xi-api-key|authorization)(["']?\s*[:=]\s*["']?)(api-key\s+|bearer\s+)?[A-Za-z0-9._\-]+`)
	jsonPattern   = regexp.MustCompile(`(?i)"(access_token|refresh_token)"\s*:\s*"[^"]*"`)
)

// RedactSecrets masks access tokens, client secrets and API keys.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := queryPattern.ReplaceAllString(out, "$1=[REDACTED]")
	changed = changed || next != out
	out = next

	next = headerPattern.ReplaceAllString(out, "$1$2$3[REDACTED]")
	changed = changed || next != out
	out = next

	next = jsonPattern.ReplaceAllString(out, `"$1":"[REDACTED]"`)
	changed = changed || next != out
	out = next

	return out, changed
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// RedactError returns err with a scrubbed message. errors.Is and errors.As
// still see the original chain.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg, changed := RedactSecrets(err.Error())
	if !changed {
		return err
	}
	return &redactedError{msg: msg, err: err}
}
