package ticket

import (
	"encoding/json"
	"net/url"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Format(t *testing.T) {
	re := regexp.MustCompile(`^TKT-[0-9A-F]{10}$`)
	for i := 0; i < 100; i++ {
		id, err := NewID()
		require.NoError(t, err)
		assert.Regexp(t, re, id)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate ticket id %s", id)
		seen[id] = true
	}
}

func TestURLRenderer_EncodesPayload(t *testing.T) {
	r := NewURLRenderer("")
	payload := QRPayload{
		TicketID:      "TKT-ABCDEF1234",
		EventID:       uuid.New(),
		ParticipantID: uuid.New(),
		EventName:     "Hackathon Finals",
	}

	got, err := r.Render(payload)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)

	var decoded QRPayload
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("data")), &decoded))
	assert.Equal(t, payload, decoded)
	assert.Equal(t, "300x300", u.Query().Get("size"))
}
