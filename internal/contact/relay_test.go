package contact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightvendors/portfolyze/internal/contact/domain"
)

func TestEmailJSRelay_Send(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	r := NewEmailJSRelay(srv.URL, "service_portfolyze", "template_portfolyze_contact", "pk", "support@portfolyze.com")
	err := r.Send(context.Background(), &domain.Message{Name: "Asha", Email: "asha@example.com", Company: "Acme", Message: "Hello"})
	require.NoError(t, err)

	assert.Equal(t, "service_portfolyze", got.ServiceID)
	assert.Equal(t, "template_portfolyze_contact", got.TemplateID)
	assert.Equal(t, "pk", got.UserID)
	assert.Equal(t, "support@portfolyze.com", got.TemplateParams.ToEmail)
	assert.Equal(t, "Asha", got.TemplateParams.FromName)
	assert.Equal(t, "asha@example.com", got.TemplateParams.FromEmail)
	assert.Equal(t, "Company: Acme\n\nHello", got.TemplateParams.Message)
	assert.Equal(t, "Portfolyze contact from Asha", got.TemplateParams.Subject)
}

func TestEmailJSRelay_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("The Public Key is invalid"))
	}))
	defer srv.Close()

	r := NewEmailJSRelay(srv.URL, "s", "t", "bad", "")
	err := r.Send(context.Background(), &domain.Message{Name: "A", Email: "a@b.co", Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "Public Key is invalid")
}

func TestEmailJSRelay_NotConfigured(t *testing.T) {
	r := NewEmailJSRelay("", "", "", "", "")
	assert.Equal(t, DefaultRelayURL, r.URL)
	assert.False(t, r.Configured())
	assert.ErrorIs(t, r.Send(context.Background(), &domain.Message{}), ErrRelayNotConfigured)

	var nilRelay *EmailJSRelay
	assert.False(t, nilRelay.Configured())
}
