// Package mfa generates one-time codes and holds the pending phone verifications they belong to.
package mfa

import (
	"crypto/rand"
	"math/big"
)

// CodeDigits is the length of generated codes.
const CodeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random CodeDigits-digit numeric code (e.g. "042917").
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	s := n.String()
	for len(s) < CodeDigits {
		s = "0" + s
	}
	return s, nil
}
