package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func collectEvents(sink *ChannelSink) []AuditEvent {
	var events []AuditEvent
	for {
		select {
		case ev := <-sink.C:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func hasEvent(events []AuditEvent, eventType string) bool {
	for _, ev := range events {
		if ev.EventType == eventType {
			return true
		}
	}
	return false
}

func newAuditedEngine(t *testing.T) (*testFixture, *ChannelSink) {
	t.Helper()
	sink := NewChannelSink(64)
	mr, client := newTestRedis(t)
	users := newMockUserStore()
	tokens := newMemRefreshStore()
	eng, err := New().
		WithConfig(testConfig(t)).
		WithRedis(client).
		WithUserStore(users).
		WithRefreshTokenStore(tokens).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(eng.Close)
	return &testFixture{engine: eng, users: users, tokens: tokens, redis: mr}, sink
}

func TestAuditTrailOfLoginFlow(t *testing.T) {
	f, sink := newAuditedEngine(t)
	f.seedUser(t, "u1", "ada@example.edu")

	f.engine.Login(tenantCtx(), "ada@example.edu", "wrong")
	tokens := f.loginTokens(t, "ada@example.edu")
	f.engine.Refresh(context.Background(), tokens.RefreshToken)
	f.engine.Refresh(context.Background(), tokens.RefreshToken) // replay

	// Close drains the dispatcher before we inspect the sink.
	f.engine.Close()
	events := collectEvents(sink)

	for _, want := range []string{auditLoginFailure, auditLoginSuccess, auditRefreshSuccess, auditReuseDetected} {
		if !hasEvent(events, want) {
			t.Errorf("missing %s event in %v", want, events)
		}
	}
	for _, ev := range events {
		if ev.EventType == auditLoginFailure && ev.ErrorCode != "invalid_credentials" {
			t.Errorf("login_failure error code = %q", ev.ErrorCode)
		}
		if ev.EventType == auditReuseDetected && ev.UserID != "u1" {
			t.Errorf("reuse event user = %q", ev.UserID)
		}
	}
}

func TestAuditEventCarriesClientMetadata(t *testing.T) {
	f, sink := newAuditedEngine(t)
	f.seedUser(t, "u1", "ada@example.edu")

	ctx := WithClientIP(tenantCtx(), "203.0.113.9")
	ctx = WithUserAgent(ctx, "cli/1.0")
	f.engine.Login(ctx, "ada@example.edu", testPassword)
	f.engine.Close()

	events := collectEvents(sink)
	if len(events) == 0 {
		t.Fatal("no events")
	}
	for _, ev := range events {
		if ev.IP != "203.0.113.9" || ev.UserAgent != "cli/1.0" {
			t.Fatalf("event metadata = %+v", ev)
		}
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Write(AuditEvent{
		Timestamp: time.Unix(1700000000, 0),
		EventType: auditLoginSuccess,
		Success:   true,
		UserID:    "u1",
	})

	var decoded AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding sink output: %v", err)
	}
	if decoded.EventType != auditLoginSuccess || decoded.UserID != "u1" || !decoded.Success {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(128)
	d := newAuditDispatcher(sink, 128, false)
	for i := 0; i < 100; i++ {
		d.emit(AuditEvent{EventType: auditLogout})
	}
	d.close()

	if got := len(collectEvents(sink)); got != 100 {
		t.Fatalf("delivered = %d, want 100", got)
	}
	// Emitting after close is a silent no-op.
	d.emit(AuditEvent{EventType: auditLogout})
	if got := len(collectEvents(sink)); got != 0 {
		t.Fatalf("post-close delivery = %d", got)
	}
}

func TestAuditErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{nil, ""},
		{ErrInvalidCredentials, "invalid_credentials"},
		{ErrTokenReuseDetected, "reuse_detected"},
		{ErrTransientFailure, "transient"},
		{transient("op", errors.New("down")), "transient"},
		{errors.New("surprise"), "internal"},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.code {
			t.Errorf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.code)
		}
	}
}

func TestMetricsSnapshot(t *testing.T) {
	f := newTestEngine(t)
	f.seedUser(t, "u1", "ada@example.edu")

	f.engine.Login(tenantCtx(), "ada@example.edu", "wrong")
	tokens := f.loginTokens(t, "ada@example.edu")
	f.engine.Refresh(context.Background(), tokens.RefreshToken)
	f.engine.Refresh(context.Background(), tokens.RefreshToken) // replay

	snap := f.engine.MetricsSnapshot()
	expect := map[string]uint64{
		"login_failure":          1,
		"login_success":          1,
		"session_issued":         1,
		"refresh_success":        1,
		"refresh_reuse_detected": 1,
	}
	for name, want := range expect {
		if snap[name] != want {
			t.Errorf("%s = %d, want %d", name, snap[name], want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = false
	})
	f.seedUser(t, "u1", "ada@example.edu")
	f.loginTokens(t, "ada@example.edu")

	if snap := f.engine.MetricsSnapshot(); len(snap) != 0 {
		t.Fatalf("snapshot of disabled metrics = %v", snap)
	}
}
