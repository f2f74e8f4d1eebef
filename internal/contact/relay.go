// Package contact accepts messages from the site's contact form and relays them by email.
package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rightvendors/portfolyze/internal/contact/domain"
)

// DefaultRelayURL is the EmailJS send endpoint.
const DefaultRelayURL = "https://api.emailjs.com/api/v1.0/email/send"

const relayTimeout = 10 * time.Second

// ErrRelayNotConfigured is returned by EmailJSRelay.Send when no service or template is set.
var ErrRelayNotConfigured = errors.New("contact: relay not configured")

// Relay forwards a stored message to a human.
type Relay interface {
	Send(ctx context.Context, m *domain.Message) error
}

// EmailJSRelay posts messages to an EmailJS-compatible endpoint.
type EmailJSRelay struct {
	URL        string
	ServiceID  string
	TemplateID string
	PublicKey  string
	ToEmail    string
	HTTPClient *http.Client
}

// NewEmailJSRelay returns a relay for the given EmailJS account. An empty url uses DefaultRelayURL.
func NewEmailJSRelay(url, serviceID, templateID, publicKey, toEmail string) *EmailJSRelay {
	if url == "" {
		url = DefaultRelayURL
	}
	return &EmailJSRelay{
		URL:        url,
		ServiceID:  serviceID,
		TemplateID: templateID,
		PublicKey:  publicKey,
		ToEmail:    toEmail,
		HTTPClient: &http.Client{Timeout: relayTimeout},
	}
}

// Configured reports whether Send can reach a real account.
func (r *EmailJSRelay) Configured() bool {
	return r != nil && r.ServiceID != "" && r.TemplateID != "" && r.PublicKey != ""
}

type templateParams struct {
	ToEmail   string `json:"to_email"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	Message   string `json:"message"`
	Subject   string `json:"subject"`
}

type sendRequest struct {
	ServiceID      string         `json:"service_id"`
	TemplateID     string         `json:"template_id"`
	UserID         string         `json:"user_id"`
	TemplateParams templateParams `json:"template_params"`
}

// Send relays m. Returns ErrRelayNotConfigured when the account is incomplete.
func (r *EmailJSRelay) Send(ctx context.Context, m *domain.Message) error {
	if !r.Configured() {
		return ErrRelayNotConfigured
	}
	body := m.Message
	if m.Company != "" {
		body = fmt.Sprintf("Company: %s\n\n%s", m.Company, m.Message)
	}
	payload, err := json.Marshal(sendRequest{
		ServiceID:  r.ServiceID,
		TemplateID: r.TemplateID,
		UserID:     r.PublicKey,
		TemplateParams: templateParams{
			ToEmail:   r.ToEmail,
			FromName:  m.Name,
			FromEmail: m.Email,
			Message:   body,
			Subject:   "Portfolyze contact from " + m.Name,
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("contact relay: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
