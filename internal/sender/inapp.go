package sender

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
)

// InAppSender has no network step: an in-app notification is "delivered" once
// it is structurally ready for display, and the persisted row itself is what
// the client renders. Only a local consistency failure can make it fail, and
// that failure is terminal since retrying changes nothing.
type InAppSender struct {
	logger *zap.Logger
}

// NewInAppSender creates the in-app channel sender.
func NewInAppSender(logger *zap.Logger) *InAppSender {
	return &InAppSender{logger: logger}
}

func (s *InAppSender) SupportsChannel(ch notification.Channel) bool {
	return ch == notification.ChannelInApp
}

func (s *InAppSender) Deliver(ctx context.Context, n *notification.Notification) Result {
	if n.Channel() != notification.ChannelInApp {
		return TerminalFailure(fmt.Sprintf("in-app sender cannot deliver channel %q", n.Channel()))
	}

	if strings.TrimSpace(n.RecipientID()) == "" {
		return TerminalFailure("in-app notification has no recipient")
	}
	if n.Content().IsZero() {
		return TerminalFailure("in-app notification has no content")
	}

	s.logger.Debug("in-app notification ready",
		zap.String("id", n.ID().String()),
		zap.String("recipient_id", n.RecipientID()),
	)

	return Delivered()
}
