package offer_answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/offer_answer/pkg/payload"
)

func acceptedResult(sessionID string, payloads ...*payload.PayloadType) *Result {
	return &Result{
		SessionID: sessionID,
		Streams: []*NegotiatedStream{{
			Type:     payload.StreamAudio,
			State:    StateAccepted,
			Mid:      "audio",
			Payloads: payloads,
		}},
	}
}

func TestHistoryCommitAndPurge(t *testing.T) {
	h := newTestHistory(t)
	opus := codec("opus", 48000, 2, 111)

	h.commit(acceptedResult("s1", opus))

	n, ok := h.Number("s1", payload.StreamAudio, opus.Identity())
	require.True(t, ok)
	assert.Equal(t, 111, n)
	mid, ok := h.Mid("s1", 0)
	require.True(t, ok)
	assert.Equal(t, "audio", mid)

	_, ok = h.Number("s1", payload.StreamVideo, opus.Identity())
	assert.False(t, ok, "номера хранятся отдельно по типу потока")

	assert.True(t, h.Purge("s1"))
	_, ok = h.Number("s1", payload.StreamAudio, opus.Identity())
	assert.False(t, ok)
	assert.False(t, h.Purge("s1"))
}

func TestHistoryKeepsRemovedCodecs(t *testing.T) {
	h := newTestHistory(t)
	opus := codec("opus", 48000, 2, 111)
	pcmu := codec("PCMU", 8000, 1, 0)

	h.commit(acceptedResult("s1", opus, pcmu))
	h.commit(acceptedResult("s1", pcmu))

	n, ok := h.Number("s1", payload.StreamAudio, opus.Identity())
	require.True(t, ok, "кодек, временно исключенный из списка, сохраняет номер")
	assert.Equal(t, 111, n)
}

func TestHistoryDropsStaleOwner(t *testing.T) {
	h := newTestHistory(t)
	speex := codec("speex", 16000, 1, 97)
	h.commit(acceptedResult("s1", speex))

	// номер 97 занят другим кодеком по требованию удаленной стороны
	h.commit(acceptedResult("s1", codec("iLBC", 8000, 1, 97)))

	_, ok := h.Number("s1", payload.StreamAudio, speex.Identity())
	assert.False(t, ok)

	view := h.record("s1").numberView(payload.StreamAudio)
	owner, ok := view.NumberOwner(97)
	require.True(t, ok)
	assert.Equal(t, "ilbc", owner.MimeType)
}

func TestHistoryIgnoresRejected(t *testing.T) {
	h := newTestHistory(t)
	res := acceptedResult("s1", codec("PCMU", 8000, 1, 0))
	res.Streams[0].State = StateRejected

	h.commit(res)
	_, ok := h.Number("s1", payload.StreamAudio, payload.Identity{MimeType: "pcmu", ClockRate: 8000, Channels: 1})
	assert.False(t, ok)
}

func TestHistoryEviction(t *testing.T) {
	h, err := NewHistory(2)
	require.NoError(t, err)

	h.commit(acceptedResult("s1", codec("PCMU", 8000, 1, 0)))
	h.commit(acceptedResult("s2", codec("PCMU", 8000, 1, 0)))
	h.commit(acceptedResult("s3", codec("PCMU", 8000, 1, 0)))

	assert.Equal(t, 2, h.Len())
	_, ok := h.Mid("s1", 0)
	assert.False(t, ok, "самая старая сессия вытеснена")
}

func TestNewHistoryInvalidCapacity(t *testing.T) {
	_, err := NewHistory(0)
	assert.True(t, IsNegotiationError(err, ErrorCodeInvalidConfig))
}

func TestNilHistory(t *testing.T) {
	var h *History
	assert.Equal(t, 0, h.Len())
	assert.False(t, h.Purge("s1"))
	_, ok := h.Number("s1", payload.StreamAudio, payload.Identity{})
	assert.False(t, ok)
}
