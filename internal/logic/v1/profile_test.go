package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/campus-portal/internal/core/domain"
)

var testRules = ProfileRules{CountryCode: "+51", PhoneDigits: 9, MinNameLength: 3}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "987654321", want: "+51987654321"},
		{name: "spaces", input: "987 654 321", want: "+51987654321"},
		{name: "dashes and parens", input: "(987)-654-321", want: "+51987654321"},
		{name: "letters ignored", input: "tel: 987.654.321", want: "+51987654321"},
		{name: "too short", input: "98765432", wantErr: true},
		{name: "too long", input: "9876543210", wantErr: true},
		{name: "prefix digits count", input: "+51 987654321", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testRules.NormalizePhone(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	user := &domain.User{UID: "u1", Email: "ana@example.com"}

	_, err := testRules.Validate(user, domain.ProfileForm{FullName: "Al", WhatsApp: "987654321"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = testRules.Validate(user, domain.ProfileForm{FullName: "  Al  ", WhatsApp: "987654321"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = testRules.Validate(user, domain.ProfileForm{FullName: "Ana", WhatsApp: "12"})
	assert.ErrorIs(t, err, domain.ErrInvalidPhone)

	fields, err := testRules.Validate(user, domain.ProfileForm{
		FullName:  "Ñoño",
		WhatsApp:  "987-654-321",
		Address:   " Av. Ejemplo 123 ",
		Reference: "Frente al parque",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileFields{
		domain.FieldUID:             "u1",
		domain.FieldEmail:           "ana@example.com",
		domain.FieldFullName:        "Ñoño",
		domain.FieldWhatsApp:        "+51987654321",
		domain.FieldAddress:         "Av. Ejemplo 123",
		domain.FieldReference:       "Frente al parque",
		domain.FieldProfileComplete: true,
	}, fields)
}
