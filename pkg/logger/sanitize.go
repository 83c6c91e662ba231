package logger

import (
	"net/url"
	"strings"
)

// SanitizedEmail masks an address for logs and for display to other users,
// keeping the first letter and the top-level domain: "p*****@*******.com"
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	masked := local[:1] + strings.Repeat("*", len(local)-1) + "@"

	labels := strings.Split(domain, ".")
	for i := range labels[:len(labels)-1] {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return masked + strings.Join(labels, ".")
}

// MaskIdentifier masks identifiers that are email addresses and returns
// anything else (e.g. "pin:<student id>") unchanged
func MaskIdentifier(identifier string) string {
	if strings.Contains(identifier, "@") {
		return SanitizedEmail(identifier)
	}
	return identifier
}

var sensitiveQueryKeys = []string{"password", "token", "secret", "email", "auth", "pin", "code"}

// HasSensitiveQuery reports whether any query parameter name looks like it
// carries a credential, an address or a link code. Unparseable queries count
// as sensitive.
func HasSensitiveQuery(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}

	for key := range values {
		key = strings.ToLower(key)
		for _, s := range sensitiveQueryKeys {
			if strings.Contains(key, s) {
				return true
			}
		}
	}
	return false
}
