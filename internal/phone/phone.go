// Package phone validates domestic phone numbers and OTP codes and formats numbers to E.164.
package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

const (
	// NationalDigits is the length of a domestic number without its country prefix.
	NationalDigits = 10
	// CodeDigits is the length of a one-time code.
	CodeDigits = 6
	// DefaultRegion is the ISO region used when none is configured.
	DefaultRegion = "IN"
)

var (
	// ErrInvalidNumber is returned for a number that is not exactly NationalDigits ASCII digits
	// or that starts with 0.
	ErrInvalidNumber = errors.New("phone: number must be exactly 10 digits")
	// ErrInvalidCode is returned for a code that is not exactly CodeDigits ASCII digits.
	ErrInvalidCode = errors.New("phone: code must be exactly 6 digits")
	// ErrInvalidE164 is returned when a number cannot be parsed or is not a valid number for its region.
	ErrInvalidE164 = errors.New("phone: invalid international number")
)

var (
	asciiDigits = regexp.MustCompile(`^[0-9]+$`)
	// A leading 0 is the domestic trunk prefix; the parser would drop it and format a 9-digit number.
	noTrunkPrefix = regexp.MustCompile(`^[1-9]`)
)

func digitsRule(n int) []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(n, n),
		validation.Match(asciiDigits),
	}
}

// ValidateNational checks that s is exactly NationalDigits decimal digits and does not start with 0.
func ValidateNational(s string) error {
	rules := append(digitsRule(NationalDigits), validation.Match(noTrunkPrefix).Error("must not start with 0"))
	if err := validation.Validate(s, rules...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	return nil
}

// ValidateCode checks that s is exactly CodeDigits decimal digits.
func ValidateCode(s string) error {
	if err := validation.Validate(s, digitsRule(CodeDigits)...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	return nil
}

// Formatter adds the country prefix of its region to domestic numbers.
type Formatter struct {
	Region string
}

// NewFormatter returns a Formatter for region; empty means DefaultRegion.
func NewFormatter(region string) Formatter {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return Formatter{Region: region}
}

// E164 formats a validated domestic number with the region's country prefix (e.g. "+919876543210").
func (f Formatter) E164(national string) (string, error) {
	if err := ValidateNational(national); err != nil {
		return "", err
	}
	num, err := phonenumbers.Parse(national, f.region())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidE164, err)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// CountryPrefix returns the region's dialing prefix, e.g. "+91".
func (f Formatter) CountryPrefix() string {
	return fmt.Sprintf("+%d", phonenumbers.GetCountryCodeForRegion(f.region()))
}

func (f Formatter) region() string {
	if f.Region == "" {
		return DefaultRegion
	}
	return f.Region
}

// NormalizeE164 parses s (international, or domestic for defaultRegion) and returns it in E.164 form.
// The number must be valid for its region.
func NormalizeE164(s, defaultRegion string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidE164
	}
	if defaultRegion == "" {
		defaultRegion = DefaultRegion
	}
	num, err := phonenumbers.Parse(s, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidE164, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidE164
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Mask hides all but the country prefix and last four digits of an E.164 number for logs.
func Mask(e164 string) string {
	if len(e164) <= 7 {
		return strings.Repeat("*", len(e164))
	}
	head := 3
	if !strings.HasPrefix(e164, "+") {
		head = 0
	}
	tail := 4
	return e164[:head] + strings.Repeat("*", len(e164)-head-tail) + e164[len(e164)-tail:]
}
