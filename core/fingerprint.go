package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Fingerprint is the normalized hash of a task's description and
// specialization. Equivalent tasks across sessions share a fingerprint, which
// is what clusters reflexion records into a class eligible for skill
// promotion.
type Fingerprint string

// FingerprintOf computes the fingerprint for a task description and
// specialization. Normalization lowercases, strips punctuation and collapses
// whitespace so cosmetic rephrasings of the same task land in the same class.
func FingerprintOf(description, specialization string) Fingerprint {
	norm := normalize(description) + "|" + normalize(specialization)
	sum := sha256.Sum256([]byte(norm))
	return Fingerprint(hex.EncodeToString(sum[:16]))
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
