package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	assert.Equal(t, "abc", GetTraceID(ctx))
	assert.Equal(t, "", GetTraceID(context.Background()))

	// empty IDs are not stored
	assert.Equal(t, "abc", GetTraceID(WithTraceID(ctx, "")))
}

func TestNewTraceIDUnique(t *testing.T) {
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}

func TestWithContextAddsFields(t *testing.T) {
	l := New("billing", "debug", "json")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = context.WithValue(ctx, UserIDKey, "user-1")
	ctx = WithCompanyID(ctx, 7)

	l.WithContext(ctx).Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "billing", entry["service"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, float64(7), entry["company_id"])
}

func TestLogRequestLevels(t *testing.T) {
	l := New("billing", "debug", "json")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.LogRequest(context.Background(), "GET", "/x", 503, time.Millisecond)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, float64(503), entry["status"])
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	l := New("billing", "nope", "text")
	assert.Equal(t, "info", l.GetLevel().String())
}
