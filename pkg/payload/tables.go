package payload

// Известные mime типы, для которых есть особая логика
const (
	MimeTelephoneEvent = "telephone-event"
	MimeOpus           = "opus"
	MimeG729           = "G729"
	MimeG729A          = "G729A"
	MimeRED            = "red"
	MimeT140           = "t140"
	MimeH264           = "H264"
	MimeFlexFEC        = "flexfec"
)

// Статические номера RFC 3551
const (
	NumberPCMU = 0
	NumberGSM  = 3
	NumberPCMA = 8
	NumberG722 = 9
	NumberG729 = 18
)

const defaultTRRInterval = 5000

func videoAVPF() AVPFParams {
	return AVPFParams{Features: AVPFFeatureAll, RPSICompatibility: false, TRRInterval: defaultTRRInterval}
}

// defaultTables встроенные таблицы кодеков по типам потоков.
// Порядок внутри таблицы - порядок предпочтения по умолчанию.
func defaultTables() map[StreamType][]*PayloadType {
	return map[StreamType][]*PayloadType{
		StreamAudio: {
			{MimeType: "opus", ClockRate: 48000, Channels: 2, Number: 96, RecvFmtp: "useinbandfec=1", VBR: true, Enabled: true},
			{MimeType: "speex", ClockRate: 16000, Channels: 1, Number: 97, RecvFmtp: "vbr=on", VBR: true, Enabled: true},
			{MimeType: "speex", ClockRate: 8000, Channels: 1, Number: 98, RecvFmtp: "vbr=on", VBR: true, Enabled: true},
			{MimeType: "PCMU", ClockRate: 8000, Channels: 1, Number: NumberPCMU, Bitrate: 64000, Enabled: true},
			{MimeType: "PCMA", ClockRate: 8000, Channels: 1, Number: NumberPCMA, Bitrate: 64000, Enabled: true},
			{MimeType: "G722", ClockRate: 8000, Channels: 1, Number: NumberG722, Bitrate: 64000, Enabled: true},
			{MimeType: "GSM", ClockRate: 8000, Channels: 1, Number: NumberGSM, Bitrate: 13200, Enabled: false},
			{MimeType: MimeG729, ClockRate: 8000, Channels: 1, Number: NumberG729, Bitrate: 8000, RecvFmtp: "annexb=yes", Enabled: false},
			{MimeType: MimeTelephoneEvent, ClockRate: 48000, Channels: 1, Number: NumberUnassigned, RecvFmtp: "0-15", Enabled: true},
			{MimeType: MimeTelephoneEvent, ClockRate: 8000, Channels: 1, Number: 101, RecvFmtp: "0-15", Enabled: true},
		},
		StreamVideo: {
			{MimeType: "VP8", ClockRate: 90000, Number: 96, AVPF: videoAVPF(), Flags: FlagRTCPFeedback, Enabled: true},
			{MimeType: MimeH264, ClockRate: 90000, Number: 97, RecvFmtp: "profile-level-id=42801F;packetization-mode=1", AVPF: videoAVPF(), Flags: FlagRTCPFeedback, Enabled: true},
			{MimeType: "AV1", ClockRate: 90000, Number: NumberUnassigned, AVPF: videoAVPF(), Flags: FlagRTCPFeedback, Enabled: false},
			{MimeType: MimeFlexFEC, ClockRate: 90000, Number: NumberUnassigned, RecvFmtp: "repair-window=200000", Enabled: false},
		},
		StreamText: {
			{MimeType: MimeT140, ClockRate: 1000, Number: 98, Enabled: true},
			{MimeType: MimeRED, ClockRate: 1000, Number: 99, Enabled: true},
		},
		StreamApplication: {},
	}
}
