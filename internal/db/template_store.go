package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campushub/notify/internal/template"
)

// TemplateStore reads notification templates from postgres. A variant exists
// when its body column is non-NULL.
type TemplateStore struct {
	db     *DB
	logger *zap.Logger
}

// NewTemplateStore creates a postgres-backed template store.
func NewTemplateStore(db *DB, logger *zap.Logger) *TemplateStore {
	return &TemplateStore{
		db:     db,
		logger: logger,
	}
}

var _ template.Store = (*TemplateStore)(nil)

// GetByID loads one template with all its channel variants.
func (s *TemplateStore) GetByID(ctx context.Context, id string) (*template.Template, error) {
	query := `
		SELECT
			id, email_subject, email_body,
			push_title, push_body, push_icon_url,
			inapp_title, inapp_body, inapp_action_url, inapp_icon_url
		FROM templates
		WHERE id = $1
	`

	var row templateRow
	err := s.db.Pool().QueryRow(ctx, query, id).Scan(
		&row.ID, &row.EmailSubject, &row.EmailBody,
		&row.PushTitle, &row.PushBody, &row.PushIconURL,
		&row.InAppTitle, &row.InAppBody, &row.InAppActionURL, &row.InAppIconURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, template.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}

	tmpl := &template.Template{ID: row.ID}

	if row.EmailBody != nil {
		tmpl.Email = &template.EmailVariant{
			Subject: deref(row.EmailSubject),
			Body:    *row.EmailBody,
		}
	}
	if row.PushBody != nil {
		tmpl.Push = &template.PushVariant{
			Title:   deref(row.PushTitle),
			Body:    *row.PushBody,
			IconURL: deref(row.PushIconURL),
		}
	}
	if row.InAppBody != nil {
		tmpl.InApp = &template.InAppVariant{
			Title:     deref(row.InAppTitle),
			Body:      *row.InAppBody,
			ActionURL: deref(row.InAppActionURL),
			IconURL:   deref(row.InAppIconURL),
		}
	}

	return tmpl, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
