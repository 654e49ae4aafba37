package v1

import "strings"

// sanitizeValidationError returns a user-friendly message for binding errors.
// Raw gin/validator messages expose struct names and are never shown.
func sanitizeValidationError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.Contains(msg, "Field validation") ||
		strings.Contains(msg, "cannot unmarshal") ||
		strings.Contains(msg, "Key:") {
		return "Please fill in the required fields"
	}
	if len(msg) < 100 && !strings.Contains(msg, "Error:") {
		return msg
	}
	return "Invalid request"
}
