package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
	"github.com/campushub/notify/internal/sender"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb := New(DefaultConfig("test"), testLogger())
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_AllowsRequestsWhenClosed(t *testing.T) {
	cb := New(DefaultConfig("test"), testLogger())
	for i := 0; i < 10; i++ {
		if !cb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 3, RecoveryTimeout: 1 * time.Second}, testLogger())
	for i := 0; i < 3; i++ {
		cb.Allow()
		cb.RecordFailure()
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 5 * time.Second}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("should reject when open")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("should allow probe after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ClosesOnSuccessfulProbe(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_ReopensOnFailedProbe(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 3}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordSuccess()
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatal("success should have reset failure count")
	}
}

func TestCircuitBreaker_HalfOpenLimitsRequests(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 50 * time.Millisecond, HalfOpenMaxRequests: 1}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("first half-open request should be allowed")
	}
	if cb.Allow() {
		t.Fatal("second half-open request should be rejected")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: 5 * time.Second}, testLogger())
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordFailure()
	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected StateClosed after reset, got %s", cb.GetState())
	}
	if !cb.Allow() {
		t.Fatal("should allow after reset")
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := New(Config{Name: "stats-test", MaxFailures: 5, RecoveryTimeout: 5 * time.Second}, testLogger())
	cb.Allow()
	cb.RecordSuccess()
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordSuccess()
	stats := cb.Stats()
	if stats.Name != "stats-test" {
		t.Fatalf("name = %s", stats.Name)
	}
	if stats.TotalRequests != 3 {
		t.Fatalf("total_requests = %d", stats.TotalRequests)
	}
	if stats.TotalSuccesses != 2 {
		t.Fatalf("total_successes = %d", stats.TotalSuccesses)
	}
	if stats.TotalFailures != 1 {
		t.Fatalf("total_failures = %d", stats.TotalFailures)
	}
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig("smtp")
	if cfg.MaxFailures != 5 {
		t.Fatalf("max_failures = %d", cfg.MaxFailures)
	}
	if cfg.RecoveryTimeout != 30*time.Second {
		t.Fatalf("recovery_timeout = %v", cfg.RecoveryTimeout)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d) = %s, want %s", tt.s, got, tt.want)
		}
	}
}

// --- ProtectedSender Tests ---

type mockSender struct {
	result       sender.Result
	channel      notification.Channel
	deliverCalls int
}

func (m *mockSender) Deliver(ctx context.Context, n *notification.Notification) sender.Result {
	m.deliverCalls++
	return m.result
}

func (m *mockSender) SupportsChannel(ch notification.Channel) bool {
	return ch == m.channel
}

func testNotif(t *testing.T, ch notification.Channel) *notification.Notification {
	t.Helper()
	content, err := notification.NewContent("Welcome", "Your account is ready.")
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	n, err := notification.New("user-1", ch, content, notification.EmptyMetadata())
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	return n
}

func TestProtectedSender_PassesThrough(t *testing.T) {
	mock := &mockSender{result: sender.Delivered(), channel: notification.ChannelEmail}
	cb := New(Config{Name: "test", MaxFailures: 5}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())
	res := ps.Deliver(context.Background(), testNotif(t, notification.ChannelEmail))
	if !res.Delivered {
		t.Fatalf("unexpected result: %+v", res)
	}
	if mock.deliverCalls != 1 {
		t.Fatalf("calls = %d", mock.deliverCalls)
	}
}

func TestProtectedSender_FailFastWhenOpen(t *testing.T) {
	mock := &mockSender{result: sender.TransientFailure("relay down"), channel: notification.ChannelEmail}
	cb := New(Config{Name: "test", MaxFailures: 2}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())
	n := testNotif(t, notification.ChannelEmail)
	ps.Deliver(context.Background(), n)
	ps.Deliver(context.Background(), n)
	mock.deliverCalls = 0
	res := ps.Deliver(context.Background(), n)
	if res.Delivered || res.Kind != sender.FailureTransient {
		t.Fatalf("expected transient fast-fail, got: %+v", res)
	}
	if mock.deliverCalls != 0 {
		t.Fatalf("sender called %d times when circuit open", mock.deliverCalls)
	}
}

func TestProtectedSender_TerminalFailureCountsAsHealthy(t *testing.T) {
	mock := &mockSender{result: sender.TerminalFailure("subscription expired"), channel: notification.ChannelPush}
	cb := New(Config{Name: "test", MaxFailures: 2}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())
	n := testNotif(t, notification.ChannelPush)
	for i := 0; i < 5; i++ {
		ps.Deliver(context.Background(), n)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("terminal failures should not trip the breaker, state = %s", cb.GetState())
	}
	if cb.Stats().TotalSuccesses != 5 {
		t.Fatalf("total_successes = %d", cb.Stats().TotalSuccesses)
	}
}

func TestProtectedSender_RecordsMetrics(t *testing.T) {
	mock := &mockSender{result: sender.Delivered(), channel: notification.ChannelPush}
	cb := New(Config{Name: "test", MaxFailures: 5}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())
	n := testNotif(t, notification.ChannelPush)
	ps.Deliver(context.Background(), n)
	if cb.Stats().TotalSuccesses != 1 {
		t.Fatal("expected 1 success")
	}
	mock.result = sender.TransientFailure("timeout")
	ps.Deliver(context.Background(), n)
	if cb.Stats().TotalFailures != 1 {
		t.Fatal("expected 1 failure")
	}
}

func TestProtectedSender_SupportsChannel(t *testing.T) {
	mock := &mockSender{channel: notification.ChannelPush}
	ps := NewProtectedSender(mock, New(DefaultConfig("t"), testLogger()), testLogger())
	if !ps.SupportsChannel(notification.ChannelPush) {
		t.Fatal("should support push")
	}
	if ps.SupportsChannel(notification.ChannelEmail) {
		t.Fatal("should not support email")
	}
}

func TestProtectedSender_FullLifecycle(t *testing.T) {
	mock := &mockSender{result: sender.Delivered(), channel: notification.ChannelEmail}
	cb := New(Config{Name: "lifecycle", MaxFailures: 3, RecoveryTimeout: 50 * time.Millisecond}, testLogger())
	ps := NewProtectedSender(mock, cb, testLogger())
	n := testNotif(t, notification.ChannelEmail)

	// Phase 1: working
	if res := ps.Deliver(context.Background(), n); !res.Delivered {
		t.Fatalf("phase1: %+v", res)
	}

	// Phase 2: relay fails, circuit opens
	mock.result = sender.TransientFailure("relay down")
	for i := 0; i < 3; i++ {
		ps.Deliver(context.Background(), n)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("phase2: expected open, got %s", cb.GetState())
	}

	// Phase 3: fail fast
	mock.deliverCalls = 0
	res := ps.Deliver(context.Background(), n)
	if res.Delivered || res.Kind != sender.FailureTransient {
		t.Fatalf("phase3: %+v", res)
	}
	if mock.deliverCalls != 0 {
		t.Fatal("phase3: sender should not be called")
	}

	// Phase 4: wait for recovery
	time.Sleep(60 * time.Millisecond)

	// Phase 5: relay recovers
	mock.result = sender.Delivered()
	if res := ps.Deliver(context.Background(), n); !res.Delivered {
		t.Fatalf("phase5: %+v", res)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("phase5: expected closed, got %s", cb.GetState())
	}

	// Phase 6: normal traffic
	for i := 0; i < 5; i++ {
		if res := ps.Deliver(context.Background(), n); !res.Delivered {
			t.Fatalf("phase6[%d]: %+v", i, res)
		}
	}
}
