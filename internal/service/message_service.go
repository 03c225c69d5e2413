package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/givers/message-service/internal/model"
)

// Field length limits, counted in characters.
const (
	MaxEmailLength   = 100
	MaxSubjectLength = 200
)

var (
	// ErrNotFound is returned when the referenced message does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrInvalidStatus is returned for a status outside {open, closed}.
	ErrInvalidStatus = errors.New("invalid status")
)

// ValidationError reports every submitted field that violates its contract.
// Fields maps the JSON field name to a human-readable reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// MessageService defines the business logic for contact messages.
// Authorization is enforced by the caller.
type MessageService interface {
	// Submit validates in and stores it as a new open message.
	Submit(ctx context.Context, in model.NewMessage) (*model.Message, error)

	// ListAll returns one page of messages after clamping opts.
	ListAll(ctx context.Context, opts model.ListOptions) (*model.MessagePage, error)

	// GetOne returns ErrNotFound when no message has the given id.
	GetOne(ctx context.Context, id int64) (*model.Message, error)

	// SetStatus moves a message to status. Setting the current status again
	// succeeds without change.
	SetStatus(ctx context.Context, id int64, status model.Status) (*model.Message, error)
}
