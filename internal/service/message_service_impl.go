package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/givers/message-service/internal/model"
	"github.com/givers/message-service/internal/repository"
)

// messageServiceImpl is the production implementation of MessageService.
type messageServiceImpl struct {
	repo repository.MessageRepository
}

// NewMessageService creates a MessageService backed by the given repository.
func NewMessageService(repo repository.MessageRepository) MessageService {
	return &messageServiceImpl{repo: repo}
}

// Submit reports every invalid field at once.
func (s *messageServiceImpl) Submit(ctx context.Context, in model.NewMessage) (*model.Message, error) {
	if err := validateNewMessage(in); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, in)
}

func validateNewMessage(in model.NewMessage) error {
	fields := map[string]string{}

	switch {
	case strings.TrimSpace(in.Email) == "":
		fields["email"] = "Email is required"
	case utf8.RuneCountInString(in.Email) > MaxEmailLength:
		fields["email"] = "Email must be at most 100 characters"
	case hasNUL(in.Email):
		fields["email"] = "Email must not contain NUL characters"
	}

	switch {
	case strings.TrimSpace(in.Subject) == "":
		fields["subject"] = "Subject is required"
	case utf8.RuneCountInString(in.Subject) > MaxSubjectLength:
		fields["subject"] = "Subject must be at most 200 characters"
	case hasNUL(in.Subject):
		fields["subject"] = "Subject must not contain NUL characters"
	}

	switch {
	case strings.TrimSpace(in.Body) == "":
		fields["message"] = "Message is required"
	case hasNUL(in.Body):
		fields["message"] = "Message must not contain NUL characters"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// hasNUL reports whether s contains U+0000, which PostgreSQL text columns reject.
func hasNUL(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}

// ListAll normalizes the pagination options and forwards them to the repository.
func (s *messageServiceImpl) ListAll(ctx context.Context, opts model.ListOptions) (*model.MessagePage, error) {
	opts = opts.Normalize()
	if opts.Status != nil && !opts.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	items, total, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Message{}
	}
	return &model.MessagePage{
		Items:   items,
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PerPage,
	}, nil
}

func (s *messageServiceImpl) GetOne(ctx context.Context, id int64) (*model.Message, error) {
	m, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}

// SetStatus rejects unknown statuses before touching the repository.
func (s *messageServiceImpl) SetStatus(ctx context.Context, id int64, status model.Status) (*model.Message, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	m, err := s.repo.UpdateStatus(ctx, id, status)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}
