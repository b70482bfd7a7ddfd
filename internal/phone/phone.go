// Package phone canonicalizes roster phone numbers into a single comparable
// key. The rules follow the Israeli numbering plan the roster uses: local
// numbers drop their leading 0 and bare 9-digit subscriber numbers get the
// 972 country prefix. The rules are deliberately not generalized to other
// numbering plans.
package phone

import "strings"

const (
	countryPrefix  = "972"
	localNumberLen = 9
	channelTag     = "whatsapp:"
)

// Normalize returns the canonical key for a raw phone string. It is a pure
// function: malformed or empty input yields "", which never matches a valid
// roster key.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	// Strip the transport channel tag ("whatsapp:+972...") and any leading +.
	if len(s) >= len(channelTag) && strings.EqualFold(s[:len(channelTag)], channelTag) {
		s = s[len(channelTag):]
	}
	s = strings.TrimPrefix(s, "+")

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// Local format: one leading zero is dropped.
	if strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}

	if len(digits) == localNumberLen && !strings.HasPrefix(digits, countryPrefix) {
		digits = countryPrefix + digits
	}
	return digits
}
