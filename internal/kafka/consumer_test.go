package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAssignment(t *testing.T) {
	a, err := DecodeAssignment([]byte(`{"event_id":"e1","holder_id":"u1","ticket_ids":["t1","t2"],"source":"WAITLIST","assigned_at":"2026-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", a.EventID)
	assert.Equal(t, "u1", a.HolderID)
	assert.Equal(t, []string{"t1", "t2"}, a.TicketIDs)
	assert.Equal(t, "WAITLIST", string(a.Source))
	assert.Equal(t, 2026, a.AssignedAt.Year())
}

func TestDecodeAssignment_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":   `{"event_id":`,
		"no tickets": `{"event_id":"e1","holder_id":"u1","ticket_ids":[]}`,
		"no holder":  `{"event_id":"e1","ticket_ids":["t1"]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAssignment([]byte(raw))
			assert.Error(t, err)
		})
	}
}
