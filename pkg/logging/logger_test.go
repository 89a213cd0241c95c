package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InvalidConfig(t *testing.T) {
	_, err := NewLogger(&Config{Level: "verbose", Format: "json", Output: "stdout"})
	assert.Error(t, err)

	_, err = NewLogger(&Config{Level: "info", Format: "xml", Output: "stdout"})
	assert.Error(t, err)
}

func TestLogger_JSONOutput(t *testing.T) {
	logger, err := NewLogger(&Config{
		Level:       "debug",
		Format:      "json",
		Output:      "stdout",
		ServiceName: "domainscan",
		Version:     "test",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Info("Circuit breaker state changed", "name", "redis", "from", "CLOSED", "to", "OPEN")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "Circuit breaker state changed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "domainscan", entry["service"])
	assert.Equal(t, "redis", entry["name"])
	assert.Equal(t, "OPEN", entry["to"])
}

func TestLogger_WithContext(t *testing.T) {
	logger, err := NewLogger(&Config{
		Level:       "info",
		Format:      "json",
		Output:      "stdout",
		ServiceName: "domainscan",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := WithCorrelationID(context.Background(), "corr-123")
	ctx = WithRequestID(ctx, "req-456")

	logger.WithContext(ctx).Info("handled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "corr-123", entry["correlation_id"])
	assert.Equal(t, "req-456", entry["request_id"])
}

func TestCorrelationID(t *testing.T) {
	id := NewCorrelationID()
	assert.NotEmpty(t, id)
	assert.NotEqual(t, id, NewCorrelationID())

	ctx := WithCorrelationID(context.Background(), id)
	assert.Equal(t, id, GetCorrelationID(ctx))
	assert.Empty(t, GetCorrelationID(context.Background()))
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger())
}
