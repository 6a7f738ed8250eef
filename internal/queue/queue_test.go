package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseInFlight tests the in-flight marker format
func TestParseInFlight(t *testing.T) {
	worker, startedAt, ok := parseInFlight("worker-3,1700000000")
	assert.True(t, ok)
	assert.Equal(t, "worker-3", worker)
	assert.EqualValues(t, 1700000000, startedAt)

	_, _, ok = parseInFlight("no-comma")
	assert.False(t, ok)

	_, _, ok = parseInFlight("worker-3,not-a-number")
	assert.False(t, ok)
}
