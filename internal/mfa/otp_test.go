package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP_SixDigits(t *testing.T) {
	for i := 0; i < 200; i++ {
		otp, err := GenerateOTP()
		require.NoError(t, err)
		require.Len(t, otp, CodeDigits)
		for _, c := range otp {
			assert.True(t, c >= '0' && c <= '9', "non-digit in %q", otp)
		}
	}
}

func TestGenerateOTP_Varies(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		otp, err := GenerateOTP()
		require.NoError(t, err)
		seen[otp] = struct{}{}
	}
	assert.Greater(t, len(seen), 40)
}
