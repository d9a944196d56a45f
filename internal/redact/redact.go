// Package redact removes sensitive values from strings before they are
// logged or returned in error responses: card numbers, credentials,
// connection strings, bearer tokens and SQL fragments.
package redact

import (
	"regexp"
	"strings"
)

// Placeholders substituted for redacted values.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedSQLPlaceholder        = "[REDACTED_SQL]"
)

// panMask is the prefix kept in front of the last four digits of a card number.
const panMask = "**** **** **** "

type rule struct {
	pattern *regexp.Regexp
	replace func(match string) string
}

func fixed(placeholder string) func(string) string {
	return func(string) string { return placeholder }
}

var (
	// Runs of 13 to 19 digits, optionally grouped by single spaces or dashes.
	panRegex = regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`)

	dbConnRegex   = regexp.MustCompile(`(?i)(postgres|postgresql|mysql|db|database|connection)://[^@\s]+@`)
	passwordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`)
	jwtRegex      = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
	apiKeyRegex   = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|bearer)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)
	sqlRegex = regexp.MustCompile(
		`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b[\s\w,*()$.=]+\b(FROM|INTO|SET)\b[\s\w,*()$.='"]*`,
	)

	// Order matters: JWTs and connection strings are replaced before the
	// generic key and PAN patterns can split them.
	rules = []rule{
		{jwtRegex, fixed(RedactedJWTPlaceholder)},
		{dbConnRegex, fixed(RedactedCredentialPlaceholder)},
		{passwordRegex, fixed(RedactedCredentialPlaceholder)},
		{apiKeyRegex, fixed(RedactedKeyPlaceholder)},
		{sqlRegex, fixed(RedactedSQLPlaceholder)},
		{panRegex, maskPAN},
	}
)

// maskPAN keeps only the last four digits of a card number.
func maskPAN(match string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	return panMask + digits[len(digits)-4:]
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllStringFunc(result, r.replace)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
