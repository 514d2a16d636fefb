// Package phone canonicalizes raw phone strings into a comparable form.
package phone

import "strings"

// Normalize strips everything except digits and a leading plus, then
// applies NANP prefixing: a bare 10-digit number gains "+1", an 11-digit
// number starting with 1 gains "+". Anything else is returned cleaned but
// unprefixed, best effort. Numbers that already carry a country code via
// "+" pass through digit-cleaned only. Never fails on unparseable input.
func Normalize(raw string) string {
	cleaned := clean(raw)
	if cleaned == "" {
		return ""
	}

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}

	switch {
	case len(cleaned) == 10:
		return "+1" + cleaned
	case len(cleaned) == 11 && cleaned[0] == '1':
		return "+" + cleaned
	default:
		return cleaned
	}
}

// clean keeps digits, plus a plus sign in the very first position. A "+"
// after any other character, even a stripped one, is discarded.
func clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	// a bare "+" with no digits is meaningless
	if b.String() == "+" {
		return ""
	}
	return b.String()
}
