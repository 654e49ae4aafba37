package domain

// Severity controls how a notification is presented.
type Severity string

const (
	SeverityDefault     Severity = "default"
	SeverityDestructive Severity = "destructive"
)

// Notification is a transient user-facing message.
type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Info builds a default-severity notification.
func Info(title, description string) Notification {
	return Notification{Title: title, Description: description, Severity: SeverityDefault}
}

// Failure builds a destructive notification.
func Failure(title, description string) Notification {
	return Notification{Title: title, Description: description, Severity: SeverityDestructive}
}
