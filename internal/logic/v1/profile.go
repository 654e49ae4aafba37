package v1

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/duynhne/campus-portal/config"
	"github.com/duynhne/campus-portal/internal/core/domain"
)

// ProfileRules are the local checks applied before a profile is written.
type ProfileRules struct {
	CountryCode   string
	PhoneDigits   int
	MinNameLength int
}

// NewProfileRules builds rules from configuration.
func NewProfileRules(cfg config.ProfileConfig) ProfileRules {
	return ProfileRules{
		CountryCode:   cfg.CountryCode,
		PhoneDigits:   cfg.PhoneDigits,
		MinNameLength: cfg.MinNameLength,
	}
}

// NormalizePhone strips every non-digit character from raw and, when exactly
// r.PhoneDigits digits remain, returns them prefixed with the country code.
func (r ProfileRules) NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(c rune) rune {
		if c >= '0' && c <= '9' {
			return c
		}
		return -1
	}, raw)

	if len(digits) != r.PhoneDigits {
		return "", fmt.Errorf("%w: want %d digits, got %d", domain.ErrInvalidPhone, r.PhoneDigits, len(digits))
	}
	return r.CountryCode + digits, nil
}

// Validate checks form and returns the document fields to merge for user.
// The completeness flag is always set.
func (r ProfileRules) Validate(user *domain.User, form domain.ProfileForm) (domain.ProfileFields, error) {
	name := strings.TrimFunc(form.FullName, unicode.IsSpace)
	if utf8.RuneCountInString(name) < r.MinNameLength {
		return nil, fmt.Errorf("%w: at least %d characters", domain.ErrInvalidName, r.MinNameLength)
	}

	phone, err := r.NormalizePhone(form.WhatsApp)
	if err != nil {
		return nil, err
	}

	return domain.ProfileFields{
		domain.FieldUID:             user.UID,
		domain.FieldEmail:           user.Email,
		domain.FieldFullName:        name,
		domain.FieldWhatsApp:        phone,
		domain.FieldAddress:         strings.TrimSpace(form.Address),
		domain.FieldReference:       strings.TrimSpace(form.Reference),
		domain.FieldProfileComplete: true,
	}, nil
}
