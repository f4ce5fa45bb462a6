package auth

import (
	"fmt"
	"math"
	"unicode"
)

// MinKeyEntropy is the strength below which CheckKeyStrength complains.
// A generated key (24 random bytes, hex encoded) is far above it.
const MinKeyEntropy = 80.0

// MinKeyLength is the shortest key CheckKeyStrength accepts.
const MinKeyLength = 16

// KeyEntropy estimates the bits of entropy of key as length * log2(charset),
// where the charset is sized by the character classes present.
func KeyEntropy(key string) float64 {
	if key == "" {
		return 0
	}
	return float64(len(key)) * math.Log2(float64(charsetSize(characterClasses(key))))
}

// CheckKeyStrength reports why key is weak, or nil. It does not look at
// hashed keys; callers only have the plain form.
func CheckKeyStrength(key string) error {
	if len(key) < MinKeyLength {
		return fmt.Errorf("api key is shorter than %d characters", MinKeyLength)
	}
	if hasRepetition(key) {
		return fmt.Errorf("api key has too much repetition")
	}
	if e := KeyEntropy(key); e < MinKeyEntropy {
		return fmt.Errorf("api key is weak (%.0f bits of entropy, want %.0f)", e, MinKeyEntropy)
	}
	return nil
}

func charsetSize(classes int) int {
	switch classes {
	case 2:
		return 36
	case 3:
		return 62
	case 4:
		return 95
	default:
		return 26
	}
}

// characterClasses counts lowercase, uppercase, digits and symbols present.
// Hex digits a-f count as lowercase, so a hex key scores two classes.
func characterClasses(s string) int {
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	n := 0
	for _, b := range []bool{lower, upper, digit, symbol} {
		if b {
			n++
		}
	}
	return n
}

// hasRepetition catches runs like "aaaa" and keys that are one block
// repeated, like "abcabcabc".
func hasRepetition(s string) bool {
	for i := 0; i+3 < len(s); i++ {
		if s[i] == s[i+1] && s[i] == s[i+2] && s[i] == s[i+3] {
			return true
		}
	}
	for size := 1; size <= len(s)/2; size++ {
		if len(s)%size != 0 {
			continue
		}
		unit := s[:size]
		repeated := true
		for i := size; i < len(s); i += size {
			if s[i:i+size] != unit {
				repeated = false
				break
			}
		}
		if repeated {
			return true
		}
	}
	return false
}
