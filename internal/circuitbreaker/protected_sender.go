package circuitbreaker

import (
	"context"

	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
	"github.com/campushub/notify/internal/sender"
)

// ProtectedSender wraps a channel sender with a circuit breaker. When the
// circuit is open, Deliver fails fast with a transient failure so the retry
// controller backs off instead of hammering a dead transport.
//
// Breaker bookkeeping follows transport health, not recipient outcomes: a
// terminal failure (expired subscription, unknown recipient) means the
// transport answered, so it counts as a success for the breaker.
type ProtectedSender struct {
	inner   sender.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps inner with the given circuit breaker.
func NewProtectedSender(inner sender.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		inner:   inner,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *ProtectedSender) SupportsChannel(ch notification.Channel) bool {
	return p.inner.SupportsChannel(ch)
}

func (p *ProtectedSender) Deliver(ctx context.Context, n *notification.Notification) sender.Result {
	if !p.breaker.Allow() {
		p.logger.Warn("delivery rejected, circuit open",
			zap.String("id", n.ID().String()),
			zap.String("channel", string(n.Channel())),
			zap.String("breaker", p.breaker.String()),
		)
		return sender.TransientFailure("circuit breaker open, transport unavailable")
	}

	result := p.inner.Deliver(ctx, n)

	if result.Delivered || result.Kind == sender.FailureTerminal {
		p.breaker.RecordSuccess()
	} else {
		p.breaker.RecordFailure()
	}

	return result
}

// Breaker exposes the underlying circuit breaker for stats endpoints.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
