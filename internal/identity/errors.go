package identity

import (
	"errors"
	"strings"
)

// Error codes surfaced by the identity service.
const (
	CodeUserNotFound      = "auth/user-not-found"
	CodeInvalidCredential = "auth/invalid-credential"
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeWeakPassword      = "auth/weak-password"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeUserDisabled      = "auth/user-disabled"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeTokenExpired      = "auth/user-token-expired"
	CodeNetwork           = "auth/network-request-failed"
	CodeInternal          = "auth/internal-error"
)

// serviceCodes maps the REST error messages to client codes.
var serviceCodes = map[string]string{
	"EMAIL_NOT_FOUND":             CodeUserNotFound,
	"INVALID_PASSWORD":            CodeInvalidCredential,
	"INVALID_LOGIN_CREDENTIALS":   CodeInvalidCredential,
	"INVALID_IDP_RESPONSE":        CodeInvalidCredential,
	"EMAIL_EXISTS":                CodeEmailInUse,
	"WEAK_PASSWORD":               CodeWeakPassword,
	"INVALID_EMAIL":               CodeInvalidEmail,
	"MISSING_EMAIL":               CodeInvalidEmail,
	"USER_DISABLED":               CodeUserDisabled,
	"TOO_MANY_ATTEMPTS_TRY_LATER": CodeTooManyRequests,
	"TOKEN_EXPIRED":               CodeTokenExpired,
	"INVALID_REFRESH_TOKEN":       CodeTokenExpired,
	"USER_NOT_FOUND":              CodeTokenExpired,
}

// Error is a failure reported by the identity service. Message is the
// service-provided text and is safe to show to the user.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message + " (" + e.Code + ")"
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the identity error code carried by err, or "" for other errors.
func CodeOf(err error) string {
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr.Code
	}
	return ""
}

// HasCode reports whether err carries one of codes.
func HasCode(err error, codes ...string) bool {
	code := CodeOf(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var idErr *Error
	if errors.As(err, &idErr) && idErr.Message != "" {
		return idErr.Message
	}
	return err.Error()
}

// fromServiceMessage parses "WEAK_PASSWORD : Password should be at least 6 characters".
func fromServiceMessage(raw string) *Error {
	key, detail, _ := strings.Cut(raw, " : ")
	key = strings.TrimSpace(key)
	code, ok := serviceCodes[key]
	if !ok {
		code = CodeInternal
	}
	msg := strings.TrimSpace(detail)
	if msg == "" {
		msg = humanize(key)
	}
	return &Error{Code: code, Message: msg}
}

func humanize(key string) string {
	if key == "" {
		return "Unexpected identity service error"
	}
	s := strings.ToLower(strings.ReplaceAll(key, "_", " "))
	return strings.ToUpper(s[:1]) + s[1:]
}
