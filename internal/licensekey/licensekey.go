// Package licensekey generates and checks the opaque license key format
// handed to customers: four groups of four uppercase alphanumerics,
// e.g. 7KQM-X2R9-A4TD-0NZP.
package licensekey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	groups    = 4
	groupSize = 4

	// KeyLength is the full formatted length including hyphens.
	KeyLength = groups*groupSize + (groups - 1)
)

var alphabetLen = big.NewInt(int64(len(alphabet)))

// New returns a fresh key drawn from crypto/rand.
func New() (string, error) {
	segments := make([]string, 0, groups)
	for i := 0; i < groups; i++ {
		var b strings.Builder
		for j := 0; j < groupSize; j++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("failed to generate license key: %w", err)
			}
			b.WriteByte(alphabet[n.Int64()])
		}
		segments = append(segments, b.String())
	}
	return strings.Join(segments, "-"), nil
}

// ValidFormat reports whether key looks like an issued license key. It says
// nothing about whether the key exists.
func ValidFormat(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	for i, c := range key {
		if (i+1)%(groupSize+1) == 0 {
			if c != '-' {
				return false
			}
			continue
		}
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}
