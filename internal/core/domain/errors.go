package domain

import "errors"

// Sentinel errors for the portal flows.
var (
	// ErrSubmitting indicates another request from the same form is still outstanding.
	// HTTP Status: 409 Conflict
	ErrSubmitting = errors.New("request already in progress")

	// ErrNoSession indicates the operation needs a signed-in user.
	// HTTP Status: 401 Unauthorized
	ErrNoSession = errors.New("no active session")

	// ErrEmailRequired indicates a password reset was requested without an email.
	ErrEmailRequired = errors.New("email is required")

	// ErrInvalidName indicates the full name is shorter than the minimum length.
	ErrInvalidName = errors.New("invalid full name")

	// ErrInvalidPhone indicates the contact number does not have the expected digit count.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidTransition indicates the action is not allowed in the current step.
	ErrInvalidTransition = errors.New("action not allowed in current step")

	// ErrStoreUnavailable indicates the document store is not configured.
	ErrStoreUnavailable = errors.New("document store not available")
)
