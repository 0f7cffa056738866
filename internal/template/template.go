// Package template implements consumption of notification templates:
// per-channel content variants with {placeholder} tokens resolved against a
// variable map at dispatch time. Template authoring lives elsewhere.
package template

import (
	"context"
	"errors"

	"github.com/campushub/notify/internal/notification"
)

// ErrUnsupportedChannel is returned when a template carries no variant for
// the requested channel.
var ErrUnsupportedChannel = errors.New("template does not support channel")

// ErrTemplateNotFound is returned by template stores.
var ErrTemplateNotFound = errors.New("template not found")

// EmailVariant is the email-specific content skeleton.
type EmailVariant struct {
	Subject string
	Body    string
}

// PushVariant is the web-push content skeleton.
type PushVariant struct {
	Title   string
	Body    string
	IconURL string
}

// InAppVariant is the in-app content skeleton.
type InAppVariant struct {
	Title     string
	Body      string
	ActionURL string
	IconURL   string
}

// Template is a reusable, per-channel content skeleton. Any of the variants
// may be nil; SupportsChannel reports which channels can be rendered.
type Template struct {
	ID    string
	Email *EmailVariant
	Push  *PushVariant
	InApp *InAppVariant
}

// SupportsChannel reports whether the template has a variant for ch.
func (t *Template) SupportsChannel(ch notification.Channel) bool {
	switch ch {
	case notification.ChannelEmail:
		return t.Email != nil
	case notification.ChannelPush:
		return t.Push != nil
	case notification.ChannelInApp:
		return t.InApp != nil
	}
	return false
}

// Store provides read access to stored templates.
type Store interface {
	GetByID(ctx context.Context, id string) (*Template, error)
}
