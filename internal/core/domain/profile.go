package domain

import "time"

// User is the identity owned by the external identity service.
type User struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
	RefreshToken string `json:"-"`
}

// Profile is the per-user record kept in the document store.
type Profile struct {
	UID             string    `json:"uid"`
	Email           string    `json:"email"`
	FullName        string    `json:"full_name"`
	WhatsApp        string    `json:"whatsapp"`
	Address         string    `json:"address"`
	Reference       string    `json:"reference"`
	ProfileComplete bool      `json:"profile_complete"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FirstName returns the first word of the full name.
func (p *Profile) FirstName() string {
	for i, r := range p.FullName {
		if r == ' ' {
			return p.FullName[:i]
		}
	}
	return p.FullName
}

// ProfileFields is a partial write. Only keys present are stored; everything
// else already in the record is preserved. UpdatedAt is assigned by the store.
type ProfileFields map[string]any

// Profile field keys as stored in the document store.
const (
	FieldUID             = "uid"
	FieldEmail           = "email"
	FieldFullName        = "full_name"
	FieldWhatsApp        = "whatsapp"
	FieldAddress         = "address"
	FieldReference       = "reference"
	FieldProfileComplete = "profile_complete"
)

// ProfileForm is the user input of the profile completion step.
type ProfileForm struct {
	FullName  string `form:"full_name" json:"full_name"`
	WhatsApp  string `form:"whatsapp" json:"whatsapp"`
	Address   string `form:"address" json:"address"`
	Reference string `form:"reference" json:"reference"`
}
