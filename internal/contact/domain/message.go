package domain

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Field limits for contact messages.
const (
	MaxNameLength    = 100
	MaxCompanyLength = 100
	MaxMessageLength = 5000
)

// Message is a note left through the contact form.
type Message struct {
	ID        string
	Name      string
	Email     string
	Company   string
	Message   string
	Relayed   bool
	CreatedAt time.Time
}

// Normalize trims surrounding whitespace and lower-cases the email.
func (m *Message) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	m.Company = strings.TrimSpace(m.Company)
	m.Message = strings.TrimSpace(m.Message)
}

// Validate checks the user-supplied fields.
func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Company, validation.RuneLength(0, MaxCompanyLength)),
		validation.Field(&m.Message, validation.Required, validation.RuneLength(1, MaxMessageLength)),
	)
}
