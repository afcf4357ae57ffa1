package media_sdp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/offer_answer/pkg/bundle"
	"github.com/arzzra/offer_answer/pkg/encryption"
	"github.com/arzzra/offer_answer/pkg/offer_answer"
	"github.com/arzzra/offer_answer/pkg/payload"
)

func testCodec(mime string, rate uint32, channels uint8, number int) *payload.PayloadType {
	return &payload.PayloadType{
		MimeType:  mime,
		ClockRate: rate,
		Channels:  channels,
		Number:    number,
		Enabled:   true,
	}
}

func callerConfig(t *testing.T) Config {
	t.Helper()
	history, err := offer_answer.NewHistory(4)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SessionID = "caller"
	cfg.Address = "10.0.0.1"
	cfg.History = history
	cfg.Capability = &offer_answer.SessionCapability{
		Streams: []*offer_answer.StreamCapability{{
			Type: payload.StreamAudio,
			Payloads: []*payload.PayloadType{
				testCodec("PCMU", 8000, 1, 0),
				testCodec("PCMA", 8000, 1, 8),
				testCodec("telephone-event", 8000, 1, 101),
			},
			Direction: offer_answer.SendRecv,
			Ptime:     20,
			Transport: offer_answer.Transport{RTPAddr: "10.0.0.1", RTPPort: 6000, RTCPAddr: "10.0.0.1", RTCPPort: 6001},
		}},
	}
	return cfg
}

func calleeConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SessionID = "callee"
	cfg.Address = "10.0.0.2"
	cfg.Capability = &offer_answer.SessionCapability{
		Streams: []*offer_answer.StreamCapability{{
			Type: payload.StreamAudio,
			Payloads: []*payload.PayloadType{
				testCodec("PCMA", 8000, 1, 8),
				testCodec("telephone-event", 8000, 1, 101),
			},
			Direction: offer_answer.SendRecv,
			Transport: offer_answer.Transport{RTPAddr: "10.0.0.2", RTPPort: 7000, RTCPAddr: "10.0.0.2", RTCPPort: 7001},
		}},
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		ok     bool
	}{
		{"по умолчанию", func(c *Config) {}, true},
		{"пустой SessionID", func(c *Config) { c.SessionID = "" }, false},
		{"без потоков", func(c *Config) { c.Capability = &offer_answer.SessionCapability{} }, false},
		{"без кодеков и реестра", func(c *Config) { c.Store = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsSDPError(err, ErrorCodeInvalidConfig))
			}
		})
	}
}

func TestOfferFromCapabilityStore(t *testing.T) {
	store := payload.NewEmptyCapabilityStore()
	require.NoError(t, store.Add(payload.StreamAudio, testCodec("G722", 8000, 1, 9)))
	require.NoError(t, store.Add(payload.StreamAudio, testCodec("PCMU", 8000, 1, 0)))

	cfg := DefaultConfig()
	cfg.Store = store
	cfg.Address = "10.0.0.1"
	cfg.Capability.Streams[0].Transport = offer_answer.Transport{RTPAddr: "10.0.0.1", RTPPort: 6000}
	builder, err := NewSDPMediaBuilder(cfg)
	require.NoError(t, err)

	offer, err := builder.CreateOffer()
	require.NoError(t, err)
	require.Len(t, offer.MediaDescriptions, 1)
	assert.Equal(t, []string{"9", "0"}, offer.MediaDescriptions[0].MediaName.Formats)

	// изменения реестра видны в следующем offer
	require.NoError(t, store.Enable(payload.StreamAudio, "G722", 8000, 1, false))
	offer, err = builder.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, offer.MediaDescriptions[0].MediaName.Formats)
	assert.Greater(t, offer.Origin.SessionVersion, uint64(0))
}

func TestOfferAnswerExchange(t *testing.T) {
	caller, err := NewSDPMediaBuilder(callerConfig(t))
	require.NoError(t, err)
	callee, err := NewSDPMediaHandler(calleeConfig(t))
	require.NoError(t, err)

	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	md := offer.MediaDescriptions[0]
	assert.Equal(t, 6000, md.MediaName.Port.Value)
	assert.Equal(t, []string{"0", "8", "101"}, md.MediaName.Formats)
	assert.True(t, hasProperty(md.Attributes, "sendrecv"))
	ptime, ok := attributeValue(md.Attributes, "ptime")
	require.True(t, ok)
	assert.Equal(t, "20", ptime)

	// через текст, как в SIP сообщении
	raw, err := offer.Marshal()
	require.NoError(t, err)
	received, err := UnmarshalSessionDescription(raw)
	require.NoError(t, err)

	require.NoError(t, callee.ProcessOffer(received))
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)

	amd := answer.MediaDescriptions[0]
	assert.Equal(t, 7000, amd.MediaName.Port.Value)
	assert.Equal(t, []string{"8", "101"}, amd.MediaName.Formats)
	assert.Equal(t, "10.0.0.2", answer.Origin.UnicastAddress)

	require.NoError(t, caller.ProcessAnswer(answer))
	res := caller.Result()
	require.NotNil(t, res)
	require.Len(t, res.Streams, 1)
	s := res.Streams[0]
	assert.True(t, s.Accepted())
	assert.Equal(t, "PCMA", s.Chosen().MimeType)
	assert.Equal(t, offer_answer.SendRecv, s.Direction)
	assert.Equal(t, "10.0.0.2", s.Transport.RTPAddr)
	assert.Equal(t, 7000, s.Transport.RTPPort)
}

func TestHandlerRejectsIncompatibleOffer(t *testing.T) {
	callee, err := NewSDPMediaHandler(calleeConfig(t))
	require.NoError(t, err)

	desc, err := UnmarshalSessionDescription(rawSDP(
		"v=0",
		"o=- 1 1 IN IP4 192.0.2.10",
		"s=-",
		"c=IN IP4 192.0.2.10",
		"t=0 0",
		"m=video 5002 RTP/AVP 31",
	))
	require.NoError(t, err)

	err = callee.ProcessOffer(desc)
	require.Error(t, err)
	assert.True(t, IsSDPError(err, ErrorCodeIncompatibleSession))
	assert.True(t, errors.Is(err, offer_answer.ErrAllStreamsRejected))

	// отказной answer все равно формируется: та же m-line с нулевым портом
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	require.Len(t, answer.MediaDescriptions, 1)
	md := answer.MediaDescriptions[0]
	assert.Equal(t, "video", md.MediaName.Media)
	assert.Equal(t, 0, md.MediaName.Port.Value)
	assert.Equal(t, []string{"31"}, md.MediaName.Formats)
}

func TestInvalidState(t *testing.T) {
	caller, err := NewSDPMediaBuilder(callerConfig(t))
	require.NoError(t, err)
	err = caller.ProcessAnswer(nil)
	assert.True(t, IsSDPError(err, ErrorCodeInvalidState))

	callee, err := NewSDPMediaHandler(calleeConfig(t))
	require.NoError(t, err)
	_, err = callee.CreateAnswer()
	assert.True(t, IsSDPError(err, ErrorCodeInvalidState))
	assert.Nil(t, callee.Result())
}

func TestBuildSessionDescription(t *testing.T) {
	pcmu := testCodec("PCMU", 8000, 1, 0)
	vp8 := testCodec("VP8", 90000, 0, 96)
	vp8.SetFlag(payload.FlagRTCPFeedback)
	vp8.AVPF = payload.AVPFParams{Features: payload.AVPFFeatureNACK | payload.AVPFFeaturePLI, TRRInterval: 5000}
	opus := testCodec("opus", 48000, 2, 111)
	opus.RecvFmtp = "useinbandfec=1"

	res := &offer_answer.Result{
		SessionID: "s1",
		Mode:      offer_answer.ModeAnswer,
		BundleGroups: []bundle.Group{
			{Tag: "0", Mids: []string{"0", "1"}},
		},
		Attributes: []offer_answer.Attribute{{Name: "x-session", Value: "1"}},
		Streams: []*offer_answer.NegotiatedStream{
			{
				Type: payload.StreamAudio, State: offer_answer.StateAccepted, Mid: "0",
				Payloads: []*payload.PayloadType{opus, pcmu}, Direction: offer_answer.RecvOnly,
				Profile: encryption.ProfileSAVP, Encryption: encryption.SdesSrtp,
				Crypto:    []encryption.CryptoSuite{{Tag: 2, Suite: "AES_CM_128_HMAC_SHA1_80", KeyParams: "inline:KEY"}},
				Transport: offer_answer.Transport{RTPAddr: "10.0.0.1", RTPPort: 6000, RTCPAddr: "10.0.0.1", RTCPPort: 6010},
				Ptime:     20,
			},
			{
				Type: payload.StreamVideo, State: offer_answer.StateAccepted, Mid: "1",
				Payloads: []*payload.PayloadType{vp8}, Direction: offer_answer.SendRecv,
				Profile: encryption.ProfileDTLSSAVPF, Encryption: encryption.DtlsSrtp, AVPF: true,
				DTLS:         &encryption.DTLSParams{Role: encryption.RoleClient, Fingerprint: testFingerprint},
				RTCPMux:      true,
				RTCPFeedback: offer_answer.RTCPFeedback{TMMBR: true},
				Transport:    offer_answer.Transport{RTPAddr: "10.0.0.5", RTPPort: 6002},
				Bandwidth:    512,
				Attributes: []offer_answer.Attribute{
					{Name: "x-session", Value: "1", Session: true},
					{Name: "x-custom", Value: "1"},
				},
			},
			{
				Type: payload.StreamText, State: offer_answer.StateRejected, Formats: []string{"98"},
				Profile: encryption.ProfileAVP,
			},
		},
	}

	desc, err := BuildSessionDescription(res, Origin{SessionID: 42, SessionVersion: 7})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", desc.Origin.UnicastAddress)
	assert.Equal(t, "-", desc.Origin.Username)
	group, ok := attributeValue(desc.Attributes, "group")
	require.True(t, ok)
	assert.Equal(t, "BUNDLE 0 1", group)
	session, ok := attributeValue(desc.Attributes, "x-session")
	require.True(t, ok)
	assert.Equal(t, "1", session)

	require.Len(t, desc.MediaDescriptions, 3)

	audio := desc.MediaDescriptions[0]
	assert.Equal(t, []string{"RTP", "SAVP"}, audio.MediaName.Protos)
	assert.Equal(t, []string{"111", "0"}, audio.MediaName.Formats)
	assert.Nil(t, audio.ConnectionInformation, "адрес совпадает с уровнем сессии")
	assert.True(t, hasProperty(audio.Attributes, "recvonly"))
	rtcp, ok := attributeValue(audio.Attributes, "rtcp")
	require.True(t, ok)
	assert.Equal(t, "6010", rtcp)
	crypto, ok := attributeValue(audio.Attributes, "crypto")
	require.True(t, ok)
	assert.Equal(t, "2 AES_CM_128_HMAC_SHA1_80 inline:KEY", crypto)
	fmtp, ok := attributeValue(audio.Attributes, "fmtp")
	require.True(t, ok)
	assert.Equal(t, "111 useinbandfec=1", fmtp)

	video := desc.MediaDescriptions[1]
	assert.Equal(t, []string{"UDP", "TLS", "RTP", "SAVPF"}, video.MediaName.Protos)
	require.NotNil(t, video.ConnectionInformation)
	assert.Equal(t, "10.0.0.5", video.ConnectionInformation.Address.Address)
	require.Len(t, video.Bandwidth, 1)
	assert.Equal(t, uint64(512), video.Bandwidth[0].Bandwidth)
	assert.True(t, hasProperty(video.Attributes, "rtcp-mux"))
	setup, ok := attributeValue(video.Attributes, "setup")
	require.True(t, ok)
	assert.Equal(t, "active", setup)
	custom, ok := attributeValue(video.Attributes, "x-custom")
	require.True(t, ok)
	assert.Equal(t, "1", custom)
	assert.False(t, hasProperty(video.Attributes, "x-session"), "атрибут сессии выводится только на уровне сессии")

	var feedback []string
	for _, a := range video.Attributes {
		if a.Key == "rtcp-fb" {
			feedback = append(feedback, a.Value)
		}
	}
	assert.Equal(t, []string{"96 nack", "96 nack pli", "96 trr-int 5000", "* ccm tmmbr"}, feedback)

	text := desc.MediaDescriptions[2]
	assert.Equal(t, 0, text.MediaName.Port.Value)
	assert.Equal(t, []string{"98"}, text.MediaName.Formats)
	assert.False(t, hasProperty(text.Attributes, "rtpmap"))

	raw, err := desc.Marshal()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "m=text 0 RTP/AVP 98"))

	_, err = BuildSessionDescription(&offer_answer.Result{}, Origin{})
	assert.True(t, IsSDPError(err, ErrorCodeSDPGeneration))
}

func TestBuildParseRoundTrip(t *testing.T) {
	caller, err := NewSDPMediaBuilder(callerConfig(t))
	require.NoError(t, err)
	offer, err := caller.CreateOffer()
	require.NoError(t, err)

	remote, err := ParseSessionDescription(offer)
	require.NoError(t, err)
	require.Len(t, remote.Streams, 1)

	s := remote.Streams[0]
	assert.Equal(t, encryption.ProfileAVP, s.Profile)
	assert.Equal(t, offer_answer.Transport{
		RTPAddr: "10.0.0.1", RTPPort: 6000, RTCPAddr: "10.0.0.1", RTCPPort: 6001,
	}, s.Transport)
	require.Len(t, s.Payloads, 3)
	assert.Equal(t, "PCMU", s.Payloads[0].MimeType)
	assert.True(t, s.Payloads[2].IsTelephoneEvent())
	assert.Equal(t, 20, s.Ptime)
}
