package media_sdp

import (
	"strconv"
	"strings"

	"github.com/arzzra/offer_answer/pkg/payload"
)

// staticPayloads статические номера RFC 3551, для которых rtpmap не обязателен
var staticPayloads = map[int]payload.Identity{
	0:  {MimeType: "PCMU", ClockRate: 8000, Channels: 1},
	3:  {MimeType: "GSM", ClockRate: 8000, Channels: 1},
	4:  {MimeType: "G723", ClockRate: 8000, Channels: 1},
	8:  {MimeType: "PCMA", ClockRate: 8000, Channels: 1},
	9:  {MimeType: "G722", ClockRate: 8000, Channels: 1},
	13: {MimeType: "CN", ClockRate: 8000, Channels: 1},
	18: {MimeType: "G729", ClockRate: 8000, Channels: 1},
	26: {MimeType: "JPEG", ClockRate: 90000},
	31: {MimeType: "H261", ClockRate: 90000},
	34: {MimeType: "H263", ClockRate: 90000},
}

// splitPayloadAttribute делит значение "96 opus/48000/2" на номер и остаток
func splitPayloadAttribute(value string) (string, string) {
	value = strings.TrimSpace(value)
	idx := strings.IndexAny(value, " \t")
	if idx < 0 {
		return value, ""
	}
	return value[:idx], strings.TrimSpace(value[idx+1:])
}

// parseRtpmap разбирает "opus/48000/2"
func parseRtpmap(encoding string) (mime string, rate uint32, channels uint8, ok bool) {
	parts := strings.Split(encoding, "/")
	if len(parts) < 2 || parts[0] == "" {
		return "", 0, 0, false
	}
	r, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	if len(parts) > 2 {
		c, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return "", 0, 0, false
		}
		channels = uint8(c)
	}
	return parts[0], uint32(r), channels, true
}

func formatRtpmap(pt *payload.PayloadType) string {
	s := pt.MimeType + "/" + strconv.FormatUint(uint64(pt.ClockRate), 10)
	if pt.Channels > 1 {
		s += "/" + strconv.Itoa(int(pt.Channels))
	}
	return strconv.Itoa(pt.Number) + " " + s
}
