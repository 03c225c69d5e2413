package model

import "time"

// Status is the triage state of a contact message.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ParseStatus returns the Status named by s. ok is false for anything other
// than exactly "open" or "closed".
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOpen:
		return StatusOpen, true
	case StatusClosed:
		return StatusClosed, true
	default:
		return "", false
	}
}

// Valid reports whether st is one of the enumerated statuses.
func (st Status) Valid() bool {
	return st == StatusOpen || st == StatusClosed
}

// Message is a contact message submitted via POST /messages.
// Only Status changes after creation.
type Message struct {
	ID        int64
	UserID    *int64 // nil when the submitter was anonymous
	Email     string
	Subject   string
	Body      string
	CreatedAt time.Time // UTC
	Status    Status
}

// NewMessage carries the submitter-provided fields for a new Message.
type NewMessage struct {
	UserID  *int64
	Email   string
	Subject string
	Body    string
}
