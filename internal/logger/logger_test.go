package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_PlainLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.LogBooking("REQUEST", "event-1", "2 issued")
	l.Warn("lock", "slow acquire")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[0], "[BOOKING")
	assert.Contains(t, lines[0], "[REQUEST] event-1 - 2 issued")
	assert.Contains(t, lines[1], "[LOCK")
}

func TestMinLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.minLevel = INFO

	l.Debug("LOCK", "hidden")
	l.Info("LOCK", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
