package shakes

import (
	"crypto/rand"
	"fmt"
	"time"
)

const sessionNameSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewSessionName produces a collision-resistant session name of the form
// `2026-08-01T12-34-56Z-x7q`, matching
// `^\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}Z-[a-z0-9]{3}$`.
func NewSessionName() string {
	ts := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	return ts + "-" + randomSuffix(3)
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader does not fail in
		// practice; fall back to a fixed suffix rather than panic.
		return fmt.Sprintf("%0*d", n, time.Now().UnixNano()%1000)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = sessionNameSuffixAlphabet[int(b)%len(sessionNameSuffixAlphabet)]
	}
	return string(out)
}
