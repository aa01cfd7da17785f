package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarshalKeepsZeroVoteCount(t *testing.T) {
	// A toggle-off can bring a song back to zero votes; consumers must
	// see that count, not a missing field.
	raw, err := json.Marshal(Event{
		Type:      EventTypeSongVoted,
		RoomCode:  "AB12",
		TrackID:   "t1",
		GuestID:   "g1",
		VoteCount: 0,
	})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "vote_count")
	assert.JSONEq(t, "0", string(decoded["vote_count"]))
}
