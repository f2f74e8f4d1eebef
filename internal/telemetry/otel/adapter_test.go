package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/rightvendors/portfolyze/internal/telemetry/domain"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	require.NotNil(t, em)
	assert.NoError(t, em.Emit(context.Background(), nil))
	assert.NoError(t, em.Emit(context.Background(), &domain.AuthEvent{EventType: "x"}))
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	assert.NoError(t, NewEventEmitter(provider).Emit(context.Background(), nil))
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	embedded.Logger
	rec otellog.Record
	n   int
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
	r.n++
}

func (r *recordCapture) Enabled(context.Context, otellog.EnabledParameters) bool { return true }

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	at := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	event := &domain.AuthEvent{
		ID:        "e1",
		UserID:    "user1",
		SessionID: "sess1",
		EventType: domain.EventSignInFailed,
		Source:    "phone_auth",
		Phone:     "+91******3210",
		Outcome:   "failure",
		Metadata:  []byte(`{"reason":"invalid_code"}`),
		CreatedAt: at,
	}
	require.NoError(t, em.Emit(context.Background(), event))
	rec := capture.rec

	assert.Equal(t, `{"reason":"invalid_code"}`, string(rec.Body().AsBytes()))
	assert.Equal(t, at, rec.Timestamp())
	assert.Equal(t, domain.EventSignInFailed, rec.EventName())
	assert.Equal(t, otellog.SeverityWarn, rec.Severity())

	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	assert.Equal(t, map[string]string{
		"event_id":   "e1",
		"user_id":    "user1",
		"session_id": "sess1",
		"event_type": domain.EventSignInFailed,
		"source":     "phone_auth",
		"phone":      "+91******3210",
		"outcome":    "failure",
	}, attrs)
}

func TestEmit_SparseEvent(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	require.NoError(t, em.Emit(context.Background(), &domain.AuthEvent{EventType: domain.EventCodeSent}))

	assert.Equal(t, 1, capture.n)
	assert.True(t, capture.rec.Body().Empty())
	assert.False(t, capture.rec.Timestamp().IsZero(), "missing timestamps are filled")
	assert.Equal(t, otellog.SeverityInfo, capture.rec.Severity())
	assert.Equal(t, 1, capture.rec.AttributesLen())
}
