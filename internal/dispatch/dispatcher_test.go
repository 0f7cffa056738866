package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
	"github.com/campushub/notify/internal/sender"
	"github.com/campushub/notify/internal/template"
)

type fakeRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]notification.Snapshot
	fails error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[uuid.UUID]notification.Snapshot{}}
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return notification.FromSnapshot(s)
}

func (r *fakeRepo) AddNew(ctx context.Context, n *notification.Notification) error {
	if r.fails != nil {
		return r.fails
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[n.ID()] = n.Snapshot()
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, n *notification.Notification) error {
	if r.fails != nil {
		return r.fails
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[n.ID()]
	if !ok {
		return notification.ErrNotFound
	}
	s := n.Snapshot()
	if stored.Version != s.Version {
		return notification.ErrVersionConflict
	}
	s.Version++
	r.rows[n.ID()] = s
	return nil
}

func (r *fakeRepo) ListByRecipient(ctx context.Context, recipientID string, page, pageSize int) ([]*notification.Notification, error) {
	return nil, nil
}

func (r *fakeRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return 0, nil
}

func (r *fakeRepo) MarkAllRead(ctx context.Context, recipientID string) error {
	return nil
}

func (r *fakeRepo) status(t *testing.T, id uuid.UUID) notification.Status {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		t.Fatalf("notification %s not stored", id)
	}
	return s.Status
}

type fakeTemplates struct {
	templates map[string]*template.Template
}

func (s *fakeTemplates) GetByID(ctx context.Context, id string) (*template.Template, error) {
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, template.ErrTemplateNotFound
	}
	return tmpl, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []notification.Event
}

func (s *captureSink) Publish(ctx context.Context, events []notification.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *captureSink) types() []notification.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]notification.EventType, len(s.events))
	for i, ev := range s.events {
		types[i] = ev.Type
	}
	return types
}

func newTestDispatcher(repo *fakeRepo, sink *captureSink, senders ...sender.Sender) *Dispatcher {
	logger := zap.NewNop()
	retrier := NewRetrier(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, logger)
	retrier.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	templates := &fakeTemplates{templates: map[string]*template.Template{
		"welcome": {
			ID:    "welcome",
			InApp: &template.InAppVariant{Title: "Welcome {name}", Body: "Glad to have you, {name}."},
		},
	}}

	return New(repo, templates, template.NewEngine(logger), retrier, sink, logger, senders...)
}

func TestCreateDirect(t *testing.T) {
	repo := newFakeRepo()
	d := newTestDispatcher(repo, &captureSink{})

	content, _ := notification.NewContent("Grade posted", "Your grade is available.")
	n, err := d.CreateDirect(context.Background(), "student-42", notification.ChannelInApp, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.status(t, n.ID()); got != notification.StatusPending {
		t.Errorf("stored status = %q, want pending", got)
	}
}

func TestCreateFromTemplate(t *testing.T) {
	repo := newFakeRepo()
	d := newTestDispatcher(repo, &captureSink{})

	n, err := d.CreateFromTemplate(context.Background(), "student-42", notification.ChannelInApp, "welcome",
		map[string]string{"name": "Ann"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := n.Content().Subject(); got != "Welcome Ann" {
		t.Errorf("subject = %q", got)
	}
	if got := repo.status(t, n.ID()); got != notification.StatusPending {
		t.Errorf("stored status = %q, want pending", got)
	}
}

func TestCreateFromTemplate_NotFound(t *testing.T) {
	d := newTestDispatcher(newFakeRepo(), &captureSink{})

	_, err := d.CreateFromTemplate(context.Background(), "student-42", notification.ChannelInApp, "missing", nil)
	if !errors.Is(err, template.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestDispatch_Delivered(t *testing.T) {
	repo := newFakeRepo()
	sink := &captureSink{}
	d := newTestDispatcher(repo, sink, &scriptSender{
		channel: notification.ChannelInApp,
		script:  []sender.Result{sender.Delivered()},
	})

	content, _ := notification.NewContent("Grade posted", "Your grade is available.")
	n, err := d.CreateDirect(context.Background(), "student-42", notification.ChannelInApp, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := repo.status(t, n.ID()); got != notification.StatusSent {
		t.Errorf("stored status = %q, want sent", got)
	}
	if n.SendAttempts() != 1 {
		t.Errorf("send_attempts = %d, want 1", n.SendAttempts())
	}
	if types := sink.types(); len(types) != 1 || types[0] != notification.EventSent {
		t.Errorf("published events = %v, want [notification.sent]", types)
	}
}

func TestDispatch_TerminalFailure(t *testing.T) {
	repo := newFakeRepo()
	sink := &captureSink{}
	d := newTestDispatcher(repo, sink, &scriptSender{
		channel: notification.ChannelPush,
		script:  []sender.Result{sender.TerminalFailure("subscription expired")},
	})

	content, _ := notification.NewContent("Grade posted", "Your grade is available.")
	n, err := d.CreateDirect(context.Background(), "student-42", notification.ChannelPush, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := repo.status(t, n.ID()); got != notification.StatusFailed {
		t.Errorf("stored status = %q, want failed", got)
	}
	if n.FailureReason() != "subscription expired" {
		t.Errorf("failure_reason = %q", n.FailureReason())
	}
	if types := sink.types(); len(types) != 1 || types[0] != notification.EventFailed {
		t.Errorf("published events = %v, want [notification.failed]", types)
	}
}

func TestDispatch_RetriesExhausted(t *testing.T) {
	repo := newFakeRepo()
	s := &scriptSender{
		channel: notification.ChannelEmail,
		script:  []sender.Result{sender.TransientFailure("relay busy")},
	}
	d := newTestDispatcher(repo, &captureSink{}, s)

	content, _ := notification.NewContent("Grade posted", "Your grade is available.")
	n, err := d.CreateDirect(context.Background(), "student-42", notification.ChannelEmail, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if s.calls != 3 {
		t.Errorf("deliver calls = %d, want 3", s.calls)
	}
	if got := repo.status(t, n.ID()); got != notification.StatusFailed {
		t.Errorf("stored status = %q, want failed", got)
	}
	// The whole retry loop is one logical attempt.
	if n.SendAttempts() != 1 {
		t.Errorf("send_attempts = %d, want 1", n.SendAttempts())
	}
}

func TestDispatch_CanceledStaysPending(t *testing.T) {
	repo := newFakeRepo()
	sink := &captureSink{}
	d := newTestDispatcher(repo, sink, &scriptSender{
		channel: notification.ChannelInApp,
		script:  []sender.Result{sender.Delivered()},
	})

	content, _ := notification.NewContent("Grade posted", "Your grade is available.")
	n, err := d.CreateDirect(context.Background(), "student-42", notification.ChannelInApp, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Dispatch(ctx, n); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if got := repo.status(t, n.ID()); got != notification.StatusPending {
		t.Errorf("stored status = %q, canceled dispatch must leave pending", got)
	}
	if n.SendAttempts() != 0 {
		t.Errorf("send_attempts = %d, cancellation must not consume an attempt", n.SendAttempts())
	}
	if types := sink.types(); len(types) != 0 {
		t.Errorf("published events = %v, want none", types)
	}
}

func TestDispatch_NoSenderForChannel(t *testing.T) {
	repo := newFakeRepo()
	d := newTestDispatcher(repo, &captureSink{}, &scriptSender{
		channel: notification.ChannelEmail,
		script:  []sender.Result{sender.Delivered()},
	})

	content, _ := notification.NewContent("Grade posted", "Your grade is available.")
	n, err := d.CreateDirect(context.Background(), "student-42", notification.ChannelPush, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = d.Dispatch(context.Background(), n)
	if err == nil || !strings.Contains(err.Error(), "no sender registered") {
		t.Fatalf("expected routing error, got %v", err)
	}
	if got := repo.status(t, n.ID()); got != notification.StatusPending {
		t.Errorf("stored status = %q, want pending", got)
	}
}

func TestPublishEvents(t *testing.T) {
	repo := newFakeRepo()
	sink := &captureSink{}
	d := newTestDispatcher(repo, sink)

	content, _ := notification.NewContent("Grade posted", "Your grade is available.")
	n, err := d.CreateDirect(context.Background(), "student-42", notification.ChannelInApp, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n.MarkSent()
	n.MarkRead()
	d.PublishEvents(context.Background(), n)

	types := sink.types()
	if len(types) != 2 || types[0] != notification.EventSent || types[1] != notification.EventRead {
		t.Errorf("published events = %v", types)
	}
}
