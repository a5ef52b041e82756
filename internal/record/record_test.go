package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangedAt(t *testing.T) {
	date := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.Nil(t, ChangedAt(date, time.Time{}))
	assert.Nil(t, ChangedAt(date, date))

	edited := date.Add(time.Minute)
	got := ChangedAt(date, edited)
	require.NotNil(t, got)
	assert.Equal(t, edited, *got)
}

func TestHelpers(t *testing.T) {
	assert.Nil(t, String(""))
	assert.Equal(t, "a", *String("a"))
	assert.Nil(t, Int64(0))
	assert.Equal(t, int64(5), *Int64(5))
	assert.True(t, *Bool(true))
}

func TestMessage_NullSender(t *testing.T) {
	data, err := json.Marshal(Message{ID: 1, Text: "hi"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	sender := raw["sender"].(map[string]any)
	assert.Nil(t, sender["user_id"])
	assert.Nil(t, sender["is_bot"])
	assert.NotContains(t, sender, "error")
	assert.Nil(t, raw["changed_at"])
	assert.Nil(t, raw["geo"])
}
