package v1

import (
	"context"

	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/internal/identity"
)

// Resolution tells how an email/password pair was resolved.
type Resolution int

const (
	ResolvedSignIn Resolution = iota + 1
	ResolvedRegistered
)

func (r Resolution) String() string {
	switch r {
	case ResolvedSignIn:
		return "sign_in"
	case ResolvedRegistered:
		return "registered"
	default:
		return "unresolved"
	}
}

// registrationFallbackCodes are the only sign-in failures that mean the account
// may not exist yet. Network and service errors must never create accounts.
var registrationFallbackCodes = []string{
	identity.CodeUserNotFound,
	identity.CodeInvalidCredential,
}

// PasswordAuthenticator signs in and registers email/password accounts.
type PasswordAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.User, error)
	CreateUserWithPassword(ctx context.Context, email, password string) (*domain.User, error)
}

// ResolveCredentials signs in with email/password and, only when the sign-in
// fails with one of registrationFallbackCodes, registers the account once.
func ResolveCredentials(ctx context.Context, auth PasswordAuthenticator, email, password string) (*domain.User, Resolution, error) {
	user, err := auth.SignInWithPassword(ctx, email, password)
	if err == nil {
		return user, ResolvedSignIn, nil
	}
	if !identity.HasCode(err, registrationFallbackCodes...) {
		return nil, 0, err
	}

	user, err = auth.CreateUserWithPassword(ctx, email, password)
	if err != nil {
		return nil, 0, err
	}
	return user, ResolvedRegistered, nil
}
