package logger

import (
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+?27\d{9}`)
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone keeps the dialing code and the last three digits.
// "+27711234567" → "+27******567"
func RedactPhone(p string) string {
	prefix := ""
	rest := p
	if strings.HasPrefix(rest, "+") {
		prefix = "+"
		rest = rest[1:]
	}
	if len(rest) < 6 {
		return strings.Repeat("*", len(p))
	}
	return prefix + rest[:2] + strings.Repeat("*", len(rest)-5) + rest[len(rest)-3:]
}
