// Package dispatch drives notification delivery: it creates aggregates from
// direct content or template renders, routes them to the sender for their
// channel, runs the retry controller, and records the outcome on the
// aggregate. One Dispatch call handles one notification; callers run
// concurrent dispatches on separate goroutines.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/notify/internal/metrics"
	"github.com/campushub/notify/internal/notification"
	"github.com/campushub/notify/internal/sender"
	"github.com/campushub/notify/internal/template"
)

// EventSink receives drained aggregate events after a successful persist.
type EventSink interface {
	Publish(ctx context.Context, events []notification.Event)
}

// LogEventSink publishes events to the structured log. It stands in for the
// real subscriber transport, which belongs to the consuming modules.
type LogEventSink struct {
	logger *zap.Logger
}

// NewLogEventSink creates a log-backed event sink.
func NewLogEventSink(logger *zap.Logger) *LogEventSink {
	return &LogEventSink{logger: logger}
}

func (s *LogEventSink) Publish(ctx context.Context, events []notification.Event) {
	for _, ev := range events {
		s.logger.Info("domain event",
			zap.String("type", string(ev.Type)),
			zap.String("notification_id", ev.NotificationID.String()),
			zap.String("recipient_id", ev.RecipientID),
			zap.String("channel", string(ev.Channel)),
			zap.String("reason", ev.Reason),
		)
	}
}

// Dispatcher is the facade in front of the delivery engine.
type Dispatcher struct {
	repo      notification.Repository
	templates template.Store
	engine    *template.Engine
	retrier   *Retrier
	senders   []sender.Sender
	events    EventSink
	logger    *zap.Logger
}

// New creates a dispatcher routing to the given senders. Adding a channel
// means adding a sender, not changing the routing.
func New(
	repo notification.Repository,
	templates template.Store,
	engine *template.Engine,
	retrier *Retrier,
	events EventSink,
	logger *zap.Logger,
	senders ...sender.Sender,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		templates: templates,
		engine:    engine,
		retrier:   retrier,
		senders:   senders,
		events:    events,
		logger:    logger,
	}
}

// CreateDirect creates and persists a pending notification from directly
// supplied content.
func (d *Dispatcher) CreateDirect(ctx context.Context, recipientID string, ch notification.Channel, content notification.Content, metadata notification.Metadata) (*notification.Notification, error) {
	n, err := notification.New(recipientID, ch, content, metadata)
	if err != nil {
		return nil, err
	}

	if err := d.repo.AddNew(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	return n, nil
}

// CreateFromTemplate renders the stored template for the requested channel
// and persists the resulting pending notification.
func (d *Dispatcher) CreateFromTemplate(ctx context.Context, recipientID string, ch notification.Channel, templateID string, vars map[string]string) (*notification.Notification, error) {
	tmpl, err := d.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	n, err := d.engine.Render(tmpl, ch, recipientID, vars)
	if err != nil {
		return nil, err
	}

	if err := d.repo.AddNew(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	return n, nil
}

// Dispatch delivers one pending notification. On success the aggregate moves
// to sent, on failure to failed with the classified reason; a canceled
// context aborts the in-flight attempt and leaves the notification pending
// without consuming a sendAttempts slot. The updated aggregate is persisted
// and its drained events handed to the sink.
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification) error {
	s, err := d.senderFor(n.Channel())
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := d.retrier.Run(ctx, s, n)
	if err != nil {
		d.logger.Info("dispatch canceled, notification stays pending",
			zap.String("id", n.ID().String()),
			zap.String("channel", string(n.Channel())),
		)
		return err
	}

	if result.Delivered {
		if err := n.MarkSent(); err != nil {
			return err
		}
	} else {
		if err := n.MarkFailed(result.Reason); err != nil {
			return err
		}
	}

	metrics.RecordDelivery(string(n.Channel()), string(n.Status()))
	metrics.RecordDeliveryLatency(string(n.Channel()), time.Since(start))

	if err := d.repo.Update(ctx, n); err != nil {
		return fmt.Errorf("persist dispatch outcome: %w", err)
	}

	d.events.Publish(ctx, n.PullEvents())

	d.logger.Info("dispatch finished",
		zap.String("id", n.ID().String()),
		zap.String("channel", string(n.Channel())),
		zap.String("status", string(n.Status())),
		zap.Int("send_attempts", n.SendAttempts()),
	)

	return nil
}

// PublishEvents drains the aggregate's event outbox into the sink. Callers
// invoke it after persisting state changes made outside Dispatch, such as
// read and dismiss transitions.
func (d *Dispatcher) PublishEvents(ctx context.Context, n *notification.Notification) {
	d.events.Publish(ctx, n.PullEvents())
}

func (d *Dispatcher) senderFor(ch notification.Channel) (sender.Sender, error) {
	for _, s := range d.senders {
		if s.SupportsChannel(ch) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no sender registered for channel %q", ch)
}
