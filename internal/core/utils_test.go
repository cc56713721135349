package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemFromWaypoint(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"X1-AG66-83180E", "X1-AG66"},
		{"X1-LJ2DS-RSE", "X1-LJ2D"},
		{"X1-AG66", "X1-AG66"},
		{"X1", "X1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SystemFromWaypoint(tt.input))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2024-07-15T10:00:00.000Z", "2024-07-15T10:00:00Z", false},
		{"2024-07-15T10:00:00Z", "2024-07-15T10:00:00Z", false},
		{"2024-07-15T12:00:00+02:00", "2024-07-15T10:00:00Z", false},
		{"2024-07-15", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(time.RFC3339))
		})
	}
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, RemainingSeconds(now, now))
	assert.Equal(t, 0, RemainingSeconds(now.Add(-time.Minute), now))
	assert.Equal(t, 1, RemainingSeconds(now.Add(200*time.Millisecond), now))
	assert.Equal(t, 30, RemainingSeconds(now.Add(30*time.Second), now))
	assert.Equal(t, 31, RemainingSeconds(now.Add(30*time.Second+time.Millisecond), now))
}

func TestIntField(t *testing.T) {
	record := map[string]interface{}{
		"json":    float64(120),
		"native":  42,
		"msgpack": int8(7),
		"text":    "12",
	}

	v, ok := IntField(record, "json")
	assert.True(t, ok)
	assert.Equal(t, 120, v)

	v, ok = IntField(record, "native")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	v, ok = IntField(record, "msgpack")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = IntField(record, "text")
	assert.False(t, ok)

	_, ok = IntField(record, "missing")
	assert.False(t, ok)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), 0))
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
