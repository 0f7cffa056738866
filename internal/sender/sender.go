// Package sender contains the channel sender implementations. A Sender is a
// pure delivery step: it hands a notification's content to one transport and
// reports the outcome as a classified Result. Status transitions and retries
// are the dispatch package's concern.
package sender

import (
	"context"
	"errors"

	"github.com/campushub/notify/internal/notification"
)

// FailureKind classifies a delivery failure for the retry controller.
type FailureKind string

const (
	// FailureTransient failures may succeed if retried (timeouts, busy relay).
	FailureTransient FailureKind = "transient"
	// FailureTerminal failures cannot be fixed by retrying (expired
	// subscription, hard bounce). They short-circuit the retry loop.
	FailureTerminal FailureKind = "terminal"
)

// Result is the outcome of a single delivery attempt.
type Result struct {
	Delivered bool
	Kind      FailureKind
	Reason    string
}

// Delivered reports a successful delivery.
func Delivered() Result {
	return Result{Delivered: true}
}

// TransientFailure reports a failure worth retrying.
func TransientFailure(reason string) Result {
	return Result{Kind: FailureTransient, Reason: reason}
}

// TerminalFailure reports a failure that retrying cannot fix.
func TerminalFailure(reason string) Result {
	return Result{Kind: FailureTerminal, Reason: reason}
}

// Sender delivers a notification over one channel.
type Sender interface {
	Deliver(ctx context.Context, n *notification.Notification) Result
	SupportsChannel(ch notification.Channel) bool
}

// Directory lookup errors.
var (
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrNoPushSubscription = errors.New("recipient has no push subscription")
)

// PushSubscription is a stored Web Push subscription: the push service
// endpoint plus the client's p256dh and auth keys.
type PushSubscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// RecipientDirectory resolves delivery addresses for recipients. It is an
// external collaborator owned by the identity module.
type RecipientDirectory interface {
	EmailAddress(ctx context.Context, recipientID string) (string, error)
	PushSubscription(ctx context.Context, recipientID string) (*PushSubscription, error)
}
