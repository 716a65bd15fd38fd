package cursor

import (
	"strings"
	"time"
)

// Cursor is the last-scanned position in a source channel for a project.
// Position only moves forward; PolledAt moves on every poll.
type Cursor struct {
	Project         string    `json:"project"`
	Channel         string    `json:"channel"`
	Position        string    `json:"position"`
	PolledAt        time.Time `json:"polled_at"`
	IntervalSeconds int       `json:"interval_seconds,omitempty"`
}

// Compare orders event positions. Numeric positions such as chat timestamps
// ("1700000000.000100") compare by value; anything else compares as text.
// The empty position sorts before every other position.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	ai, af, aok := splitNumeric(a)
	bi, bf, bok := splitNumeric(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	if c := compareDigits(ai, bi); c != 0 {
		return c
	}
	// Fractions compare left-aligned: pad the shorter with zeros.
	for len(af) < len(bf) {
		af += "0"
	}
	for len(bf) < len(af) {
		bf += "0"
	}
	return strings.Compare(af, bf)
}

// Max returns the later of two positions.
func Max(a, b string) string {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

func splitNumeric(s string) (intPart, frac string, ok bool) {
	intPart, frac, _ = strings.Cut(s, ".")
	if intPart == "" || !allDigits(intPart) || !allDigits(frac) {
		return "", "", false
	}
	return strings.TrimLeft(intPart, "0"), frac, true
}

func compareDigits(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
