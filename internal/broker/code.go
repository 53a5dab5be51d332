package broker

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	minCode   = 100000
	maxCode   = 999999
	codeSpace = maxCode - minCode + 1

	// maxCodeAttempts bounds the random draws in Create. After that many
	// collisions the store scans sequentially for a free code, so Create
	// only fails when every code is live.
	maxCodeAttempts = 64
)

// CodeGenerator returns a candidate session code. Uniqueness against live
// sessions is enforced by the Store, not the generator.
type CodeGenerator func() (string, error)

// RandomCode draws a six-digit code uniformly from [100000, 999999].
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+minCode, 10), nil
}

// ValidCode reports whether s has the shape of a generated code.
func ValidCode(s string) bool {
	if len(s) != 6 || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
