package template

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Engine substitutes template variables into a channel variant and wraps the
// result in a new pending notification.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a substitution engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Render selects the variant for the requested channel, substitutes {key}
// tokens from vars (case-insensitive key matching, unresolved tokens left
// verbatim), and returns a pending notification carrying the substituted
// content plus the variable map as its metadata snapshot. Content bounds are
// enforced on the substituted strings.
func (e *Engine) Render(tmpl *Template, ch notification.Channel, recipientID string, vars map[string]string) (*notification.Notification, error) {
	if !tmpl.SupportsChannel(ch) {
		return nil, ErrUnsupportedChannel
	}

	metadata, err := notification.NewMetadata(vars)
	if err != nil {
		return nil, err
	}

	var content notification.Content
	switch ch {
	case notification.ChannelEmail:
		content, err = notification.NewContent(
			substitute(tmpl.Email.Subject, metadata),
			substitute(tmpl.Email.Body, metadata),
		)
	case notification.ChannelPush:
		content, err = notification.NewContent(
			substitute(tmpl.Push.Title, metadata),
			substitute(tmpl.Push.Body, metadata),
			notification.WithIconURL(tmpl.Push.IconURL),
		)
	case notification.ChannelInApp:
		content, err = notification.NewContent(
			substitute(tmpl.InApp.Title, metadata),
			substitute(tmpl.InApp.Body, metadata),
			notification.WithActionURL(tmpl.InApp.ActionURL),
			notification.WithIconURL(tmpl.InApp.IconURL),
		)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug("template rendered",
		zap.String("template_id", tmpl.ID),
		zap.String("channel", string(ch)),
		zap.Int("variables", metadata.Len()),
	)

	return notification.NewFromTemplate(recipientID, ch, tmpl.ID, content, metadata)
}

// substitute replaces every {key} token with the matching variable value.
// Tokens with no matching key stay verbatim so a partially configured
// template still produces readable output for review.
func substitute(s string, vars notification.Metadata) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(token string) string {
		key := token[1 : len(token)-1]
		if v, ok := vars.Get(key); ok {
			return v
		}
		return token
	})
}
