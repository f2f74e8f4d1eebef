package domain

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MaxDisplayNameLength bounds the profile name set at sign-up.
const MaxDisplayNameLength = 80

// Identity is a person known by their verified phone number.
type Identity struct {
	ID           string
	Phone        string // E.164
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSignInAt *time.Time
}

// Validate checks the stored fields.
func (i Identity) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ID, validation.Required, is.UUIDv4),
		validation.Field(&i.Phone, validation.Required, is.E164),
		validation.Field(&i.DisplayName, validation.Length(0, MaxDisplayNameLength)),
	)
}
