package payload

import (
	"fmt"
	"strings"
)

// StreamType тип медиа потока (m-line).
//
// Известные типы перечислены константами. Любое другое значение трактуется
// как неизвестный тип приложения: такие m-line допустимы по RFC 4566 и
// отклоняются с нулевым портом, но никогда не удаляются из списка.
type StreamType string

const (
	StreamAudio       StreamType = "audio"
	StreamVideo       StreamType = "video"
	StreamText        StreamType = "text"
	StreamApplication StreamType = "application"
)

// KnownStreamTypes типы, для которых реестр ведет таблицы кодеков
var KnownStreamTypes = []StreamType{StreamAudio, StreamVideo, StreamText, StreamApplication}

// ParseStreamType возвращает тип потока по имени из m-line (регистр не важен)
func ParseStreamType(name string) StreamType {
	return StreamType(strings.ToLower(strings.TrimSpace(name)))
}

// IsKnown проверяет, что тип потока поддерживается движком
func (t StreamType) IsKnown() bool {
	switch t {
	case StreamAudio, StreamVideo, StreamText, StreamApplication:
		return true
	}
	return false
}

func (t StreamType) String() string {
	return string(t)
}

// Flags набор флагов payload type
type Flags uint16

const (
	// FlagCanSend кодек может использоваться для отправки
	FlagCanSend Flags = 1 << iota
	// FlagCanRecv кодек может использоваться для приема
	FlagCanRecv
	// FlagFrozenNumber номер закреплен и не должен переназначаться
	FlagFrozenNumber
	// FlagRTCPFeedback для кодека включены AVPF feedback сообщения
	FlagRTCPFeedback
)

// AVPF feature bits (RFC 4585/5104)
const (
	AVPFFeatureFIR  uint8 = 1 << iota // Full Intra Request
	AVPFFeaturePLI                    // Picture Loss Indication
	AVPFFeatureSLI                    // Slice Loss Indication
	AVPFFeatureRPSI                   // Reference Picture Selection Indication
	AVPFFeatureNACK                   // Generic NACK

	AVPFFeatureAll = AVPFFeatureFIR | AVPFFeaturePLI | AVPFFeatureSLI | AVPFFeatureRPSI | AVPFFeatureNACK
)

// AVPFParams AVPF параметры кодека
type AVPFParams struct {
	Features          uint8
	RPSICompatibility bool
	TRRInterval       uint16 // мс, 0 - не задан
}

const (
	// NumberUnassigned номер еще не назначен
	NumberUnassigned = -1
	// WildcardClockRate частота "не важно"
	WildcardClockRate = 0
	// WildcardChannels количество каналов "не важно"
	WildcardChannels = 0
)

// PayloadType описание кодека в capability наборе или в результате согласования.
//
// Идентичность записи - (mime type без учета регистра, clock rate, channels).
// Номер (0-127) назначается динамически, но остается неизменным в пределах
// одной сессии для одной и той же идентичности.
type PayloadType struct {
	MimeType  string
	ClockRate uint32
	Channels  uint8

	// SendFmtp параметры, которые нужно соблюдать при отправке
	SendFmtp string
	// RecvFmtp параметры, которые мы объявляем для приема
	RecvFmtp string

	Number  int
	VBR     bool
	Bitrate int // бит/с, 0 - по умолчанию кодека

	AVPF  AVPFParams
	Flags Flags

	Enabled bool
	// PriorityBonus перемещает кодек в начало локального списка перед
	// сопоставлением, не изменяя статическую таблицу.
	PriorityBonus bool
}

// Identity ключ идентичности кодека
type Identity struct {
	MimeType  string
	ClockRate uint32
	Channels  uint8
}

func (id Identity) String() string {
	if id.Channels > 0 {
		return fmt.Sprintf("%s/%d/%d", id.MimeType, id.ClockRate, id.Channels)
	}
	return fmt.Sprintf("%s/%d", id.MimeType, id.ClockRate)
}

// Identity возвращает нормализованную идентичность записи
func (pt *PayloadType) Identity() Identity {
	return Identity{
		MimeType:  strings.ToLower(pt.MimeType),
		ClockRate: pt.ClockRate,
		Channels:  pt.Channels,
	}
}

// Clone возвращает независимую копию записи
func (pt *PayloadType) Clone() *PayloadType {
	if pt == nil {
		return nil
	}
	c := *pt
	return &c
}

// HasFlag проверяет наличие флага
func (pt *PayloadType) HasFlag(f Flags) bool {
	return pt.Flags&f == f
}

// SetFlag устанавливает флаг
func (pt *PayloadType) SetFlag(f Flags) {
	pt.Flags |= f
}

// UnsetFlag снимает флаг
func (pt *PayloadType) UnsetFlag(f Flags) {
	pt.Flags &^= f
}

// IsTelephoneEvent проверяет, что запись описывает RFC 4733 события
func (pt *PayloadType) IsTelephoneEvent() bool {
	return strings.EqualFold(pt.MimeType, MimeTelephoneEvent)
}

// IsMime сравнивает mime type без учета регистра
func (pt *PayloadType) IsMime(mime string) bool {
	return strings.EqualFold(pt.MimeType, mime)
}

// String форматирует запись как в rtpmap
func (pt *PayloadType) String() string {
	return fmt.Sprintf("%d %s", pt.Number, pt.Identity())
}

// OnlyTelephoneEvent проверяет, что в списке нет ни одного настоящего кодека.
// Пустой список тоже считается таковым.
func OnlyTelephoneEvent(list []*PayloadType) bool {
	for _, pt := range list {
		if !pt.IsTelephoneEvent() {
			return false
		}
	}
	return true
}

// CloneList копирует список записей
func CloneList(list []*PayloadType) []*PayloadType {
	out := make([]*PayloadType, 0, len(list))
	for _, pt := range list {
		out = append(out, pt.Clone())
	}
	return out
}
