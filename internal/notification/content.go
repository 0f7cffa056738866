package notification

import "strings"

// Field length bounds for notification content.
const (
	MaxSubjectLen   = 200
	MaxBodyLen      = 2000
	MaxActionURLLen = 2000
	MaxIconURLLen   = 1000
)

// Content is the immutable subject/body/action/icon bundle carried by a
// notification. Construct it through NewContent; a zero Content is invalid.
type Content struct {
	subject   string
	body      string
	actionURL string
	iconURL   string
}

// ContentOption customizes optional Content fields.
type ContentOption func(*Content)

// WithActionURL sets the optional action link opened when the notification
// is clicked.
func WithActionURL(url string) ContentOption {
	return func(c *Content) { c.actionURL = url }
}

// WithIconURL sets the optional icon shown alongside the notification.
func WithIconURL(url string) ContentOption {
	return func(c *Content) { c.iconURL = url }
}

// NewContent validates and builds a Content. Subject and body are required
// and bounded; the optional URLs only have upper bounds.
func NewContent(subject, body string, opts ...ContentOption) (Content, error) {
	c := Content{subject: subject, body: body}
	for _, opt := range opts {
		opt(&c)
	}

	if strings.TrimSpace(c.subject) == "" {
		return Content{}, ErrSubjectRequired
	}
	if len([]rune(c.subject)) > MaxSubjectLen {
		return Content{}, ErrSubjectTooLong
	}
	if strings.TrimSpace(c.body) == "" {
		return Content{}, ErrBodyRequired
	}
	if len([]rune(c.body)) > MaxBodyLen {
		return Content{}, ErrBodyTooLong
	}
	if len([]rune(c.actionURL)) > MaxActionURLLen {
		return Content{}, ErrActionURLTooLong
	}
	if len([]rune(c.iconURL)) > MaxIconURLLen {
		return Content{}, ErrIconURLTooLong
	}

	return c, nil
}

func (c Content) Subject() string   { return c.subject }
func (c Content) Body() string      { return c.body }
func (c Content) ActionURL() string { return c.actionURL }
func (c Content) IconURL() string   { return c.iconURL }

// IsZero reports whether the content was never constructed.
func (c Content) IsZero() bool {
	return c.subject == "" && c.body == ""
}
