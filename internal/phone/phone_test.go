package phone

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"formatted NANP", "(416) 555-1234", "+14165551234"},
		{"bare ten digits", "4165551234", "+14165551234"},
		{"eleven digits with country code", "14165551234", "+14165551234"},
		{"already E.164", "+14165551234", "+14165551234"},
		{"E.164 with punctuation", "+1 (416) 555-1234", "+14165551234"},
		{"international passthrough", "+442071234567", "+442071234567"},
		{"short code kept unprefixed", "123", "123"},
		{"extension-length digits kept unprefixed", "555123456", "555123456"},
		{"eleven digits not starting with 1", "24165551234", "24165551234"},
		{"empty", "", ""},
		{"lone plus", "+", ""},
		{"letters stripped", "416-CALL-NOW", "416"},
		{"plus after junk dropped", "abc+123", "123"},
		{"plus after stripped space dropped", " +442071234567", "442071234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestProperty_Normalize_Idempotent tests that normalizing twice equals
// normalizing once. *For any* input, Normalize(Normalize(x)) SHALL equal
// Normalize(x).
func TestProperty_Normalize_Idempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.StringMatching(`[0-9+() .-]{0,20}`).Draw(rt, "raw")

		once := Normalize(raw)
		twice := Normalize(once)

		if once != twice {
			t.Fatalf("PROPERTY VIOLATION: Normalize not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	})
}

// TestProperty_Normalize_OutputAlphabet tests that output contains only
// digits, with at most one leading plus.
func TestProperty_Normalize_OutputAlphabet(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.StringMatching(`[0-9a-z+() .-]{0,24}`).Draw(rt, "raw")

		got := Normalize(raw)
		if got == "" {
			return
		}

		body := got
		if strings.HasPrefix(got, "+") {
			body = got[1:]
			if body == "" {
				t.Fatalf("PROPERTY VIOLATION: lone plus returned for %q", raw)
			}
		}
		for _, r := range body {
			if r < '0' || r > '9' {
				t.Fatalf("PROPERTY VIOLATION: non-digit %q in Normalize(%q) = %q", r, raw, got)
			}
		}
	})
}

// TestProperty_Normalize_NeverDropsDigits tests that every digit of the
// input survives normalization (prefixing aside, digits are preserved).
func TestProperty_Normalize_NeverDropsDigits(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.StringMatching(`[0-9() .-]{0,20}`).Draw(rt, "raw")

		var digits strings.Builder
		for _, r := range raw {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}

		got := strings.TrimPrefix(Normalize(raw), "+")
		if !strings.HasSuffix(got, digits.String()) {
			t.Fatalf("PROPERTY VIOLATION: digits of %q lost: got %q, want suffix %q", raw, got, digits.String())
		}
	})
}
