package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityStoreDefaults(t *testing.T) {
	store := NewCapabilityStore()

	audio := store.Payloads(StreamAudio)
	require.NotEmpty(t, audio)
	assert.Equal(t, "opus", audio[0].MimeType)

	pcmu, ok := store.Find(StreamAudio, "pcmu", 8000, 0)
	require.True(t, ok)
	assert.Equal(t, NumberPCMU, pcmu.Number)

	for _, typ := range KnownStreamTypes {
		seen := make(map[Identity]bool)
		for _, p := range store.Payloads(typ) {
			assert.False(t, seen[p.Identity()], "дубликат %s в таблице %s", p.Identity(), typ)
			seen[p.Identity()] = true
		}
	}
}

func TestCapabilityStoreConfiguration(t *testing.T) {
	store := NewCapabilityStore()

	require.NoError(t, store.Enable(StreamAudio, "PCMA", 8000, 1, false))
	require.NoError(t, store.SetBitrate(StreamAudio, "opus", 48000, 2, 32000))
	require.NoError(t, store.SetPriorityBonus(StreamAudio, "PCMU", 8000, 1, true))

	for _, p := range store.EnabledPayloads(StreamAudio) {
		assert.False(t, p.IsMime("PCMA"))
	}
	opus, ok := store.Find(StreamAudio, "opus", 48000, 2)
	require.True(t, ok)
	assert.Equal(t, 32000, opus.Bitrate)

	prepared := Prepare(store.Payloads(StreamAudio))
	assert.Equal(t, "PCMU", prepared[0].MimeType)

	assert.Error(t, store.Enable(StreamAudio, "AMR", 8000, 1, true))
	assert.Error(t, store.SetBitrate(StreamAudio, "opus", 48000, 2, -1))
}

func TestCapabilityStoreSetNumber(t *testing.T) {
	store := NewCapabilityStore()

	require.NoError(t, store.SetNumber(StreamVideo, "VP8", 90000, 0, 120))
	vp8, ok := store.Find(StreamVideo, "VP8", 90000, 0)
	require.True(t, ok)
	assert.Equal(t, 120, vp8.Number)
	assert.True(t, vp8.HasFlag(FlagFrozenNumber))

	assert.Error(t, store.SetNumber(StreamVideo, "H264", 90000, 0, 120), "номер уже занят")
	assert.Error(t, store.SetNumber(StreamVideo, "H264", 90000, 0, 128))
}

func TestCapabilityStoreEnableMatching(t *testing.T) {
	store := NewCapabilityStore()

	changed, err := store.EnableMatching(StreamAudio, "speex/*", false)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = store.EnableMatching(StreamVideo, "AV*", true)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	av1, ok := store.Find(StreamVideo, "AV1", 90000, 0)
	require.True(t, ok)
	assert.True(t, av1.Enabled)

	_, err = store.EnableMatching(StreamAudio, "[", true)
	assert.Error(t, err)
}

func TestCapabilityStoreSnapshotIsolation(t *testing.T) {
	store := NewCapabilityStore()
	snap := store.Snapshot()

	require.NoError(t, store.Enable(StreamAudio, "PCMU", 8000, 1, false))

	for _, p := range snap.Payloads(StreamAudio) {
		if p.IsMime("PCMU") {
			assert.True(t, p.Enabled, "снимок не должен видеть последующие изменения")
		}
	}

	list := snap.Payloads(StreamAudio)
	list[0].MimeType = "changed"
	assert.Equal(t, "opus", snap.Payloads(StreamAudio)[0].MimeType)
}

func TestCapabilityStoreAdd(t *testing.T) {
	store := NewEmptyCapabilityStore()

	require.NoError(t, store.Add(StreamAudio, pt("PCMU", 8000, 1, 0)))
	assert.Error(t, store.Add(StreamAudio, pt("pcmu", 8000, 1, 0)))
	assert.Error(t, store.Add(StreamType("message"), pt("x", 0, 0, 96)))
	assert.Error(t, store.Add(StreamAudio, &PayloadType{}))
	assert.Len(t, store.Payloads(StreamAudio), 1)
}

func TestFmtpHelpers(t *testing.T) {
	fmtp := "profile-level-id=42801F; packetization-mode=1;flag"

	v, ok := FmtpValue(fmtp, "PACKETIZATION-MODE")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	assert.Equal(t, "profile-level-id=42801F;packetization-mode=0;flag", SetFmtpValue(fmtp, "packetization-mode", "0"))
	assert.Equal(t, "a=1;b=2", AppendFmtp("a=1", "a=5;b=2"))
	assert.Equal(t, "a=1", AppendFmtp("a=1", ""))
}
