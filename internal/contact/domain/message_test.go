package domain

import (
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_NormalizeAndValidate(t *testing.T) {
	m := Message{Name: "  Asha ", Email: " Asha@Example.COM ", Message: " hello\n"}
	m.Normalize()
	assert.Equal(t, "Asha", m.Name)
	assert.Equal(t, "asha@example.com", m.Email)
	assert.Equal(t, "hello", m.Message)
	require.NoError(t, m.Validate())
}

func TestMessage_ValidateFailures(t *testing.T) {
	testCases := []struct {
		name  string
		msg   Message
		field string
	}{
		{"missing name", Message{Email: "a@b.co", Message: "hi"}, "Name"},
		{"bad email", Message{Name: "A", Email: "not-an-email", Message: "hi"}, "Email"},
		{"missing message", Message{Name: "A", Email: "a@b.co"}, "Message"},
		{"long company", Message{Name: "A", Email: "a@b.co", Message: "hi", Company: strings.Repeat("c", MaxCompanyLength+1)}, "Company"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			require.Error(t, err)
			var errs validation.Errors
			require.ErrorAs(t, err, &errs)
			assert.Contains(t, errs, tc.field)
		})
	}
}
