package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campushub/notify/internal/sender"
)

// RecipientDirectory resolves recipient contact points from the recipients
// table at delivery time.
type RecipientDirectory struct {
	db     *DB
	logger *zap.Logger
}

// NewRecipientDirectory creates a postgres-backed recipient directory.
func NewRecipientDirectory(db *DB, logger *zap.Logger) *RecipientDirectory {
	return &RecipientDirectory{
		db:     db,
		logger: logger,
	}
}

var _ sender.RecipientDirectory = (*RecipientDirectory)(nil)

// EmailAddress returns the recipient's email address, or ErrRecipientNotFound
// when the recipient is unknown or has no address on file.
func (d *RecipientDirectory) EmailAddress(ctx context.Context, recipientID string) (string, error) {
	var email *string
	err := d.db.Pool().QueryRow(ctx,
		`SELECT email FROM recipients WHERE id = $1`, recipientID,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", sender.ErrRecipientNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query recipient email: %w", err)
	}
	if email == nil || *email == "" {
		return "", sender.ErrRecipientNotFound
	}

	return *email, nil
}

// PushSubscription returns the recipient's stored web push subscription, or
// ErrNoPushSubscription when none is registered.
func (d *RecipientDirectory) PushSubscription(ctx context.Context, recipientID string) (*sender.PushSubscription, error) {
	var row recipientRow
	err := d.db.Pool().QueryRow(ctx,
		`SELECT id, email, push_endpoint, push_p256dh, push_auth FROM recipients WHERE id = $1`,
		recipientID,
	).Scan(&row.ID, &row.Email, &row.PushEndpoint, &row.PushP256dh, &row.PushAuth)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sender.ErrNoPushSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("query push subscription: %w", err)
	}

	if row.PushEndpoint == nil || *row.PushEndpoint == "" {
		return nil, sender.ErrNoPushSubscription
	}

	return &sender.PushSubscription{
		Endpoint: *row.PushEndpoint,
		P256dh:   deref(row.PushP256dh),
		Auth:     deref(row.PushAuth),
	}, nil
}
