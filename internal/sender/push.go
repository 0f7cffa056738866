package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
)

// PushConfig holds the Web Push transport parameters: the VAPID subject
// (a mailto: or https: URL identifying the sender) and key pair.
type PushConfig struct {
	Subject         string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	Timeout         time.Duration
}

// pushPayload is the wire format posted to the subscription endpoint.
type pushPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Icon  *string         `json:"icon"`
	Data  pushPayloadData `json:"data"`
}

type pushPayloadData struct {
	URL *string `json:"url"`
}

// PushSender delivers notifications over Web Push: it resolves the
// recipient's stored subscription, signs the payload with the VAPID key pair
// and posts it to the subscription endpoint. A response saying the
// subscription no longer exists (404/410) is terminal; everything else is
// worth retrying.
type PushSender struct {
	directory RecipientDirectory
	config    PushConfig
	client    *http.Client
	logger    *zap.Logger
}

// NewPushSender creates the push channel sender.
func NewPushSender(directory RecipientDirectory, cfg PushConfig, logger *zap.Logger) *PushSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if cfg.TTL == 0 {
		cfg.TTL = 86400
	}

	return &PushSender{
		directory: directory,
		config:    cfg,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

func (s *PushSender) SupportsChannel(ch notification.Channel) bool {
	return ch == notification.ChannelPush
}

func (s *PushSender) Deliver(ctx context.Context, n *notification.Notification) Result {
	if n.Channel() != notification.ChannelPush {
		return TerminalFailure(fmt.Sprintf("push sender cannot deliver channel %q", n.Channel()))
	}

	sub, err := s.directory.PushSubscription(ctx, n.RecipientID())
	if err != nil {
		if errors.Is(err, ErrNoPushSubscription) {
			return TerminalFailure("recipient has no push subscription")
		}
		return TransientFailure(fmt.Sprintf("resolve push subscription: %v", err))
	}

	payload := pushPayload{
		Title: n.Content().Subject(),
		Body:  n.Content().Body(),
	}
	if icon := n.Content().IconURL(); icon != "" {
		payload.Icon = &icon
	}
	if url := n.Content().ActionURL(); url != "" {
		payload.Data.URL = &url
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TerminalFailure(fmt.Sprintf("encode push payload: %v", err))
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.config.Subject,
		TTL:             s.config.TTL,
		VAPIDPublicKey:  s.config.VAPIDPublicKey,
		VAPIDPrivateKey: s.config.VAPIDPrivateKey,
	})
	if err != nil {
		return TransientFailure(fmt.Sprintf("push request failed: %v", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The push service no longer knows this subscription; retrying
		// cannot bring it back.
		return TerminalFailure(fmt.Sprintf("push subscription expired (status %d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return TransientFailure(fmt.Sprintf("push service returned status %d", resp.StatusCode))
	}

	s.logger.Info("push delivered",
		zap.String("id", n.ID().String()),
		zap.String("recipient_id", n.RecipientID()),
		zap.Int("status_code", resp.StatusCode),
	)

	return Delivered()
}
