package offer_answer

import (
	"net/netip"

	"github.com/arzzra/offer_answer/pkg/bundle"
	"github.com/arzzra/offer_answer/pkg/encryption"
	"github.com/arzzra/offer_answer/pkg/payload"
)

// Mode режим вызова Negotiate
type Mode int

const (
	// ModeOffer формирование собственного offer (remote == nil) или
	// обработка ответа на него (remote != nil)
	ModeOffer Mode = iota
	// ModeAnswer формирование ответа на удаленный offer
	ModeAnswer
)

func (m Mode) String() string {
	if m == ModeAnswer {
		return "answer"
	}
	return "offer"
}

// Attribute произвольный SDP атрибут (имя/значение), переносится без разбора
type Attribute struct {
	Name  string
	Value string
	// Session атрибут унаследован потоком с уровня сессии
	Session bool
}

// Transport адреса потока. Пустой RTCPAddr и нулевой RTCPPort означают
// отсутствие собственного RTCP адреса.
type Transport struct {
	RTPAddr  string
	RTPPort  int
	RTCPAddr string
	RTCPPort int
}

// IsMulticast проверяет, что RTP адрес - multicast
func (t Transport) IsMulticast() bool {
	addr, err := netip.ParseAddr(t.RTPAddr)
	return err == nil && addr.IsMulticast()
}

// RTCPFeedback общие флаги RTCP feedback потока
type RTCPFeedback struct {
	GenericNACK bool
	TMMBR       bool
}

func (f RTCPFeedback) and(o RTCPFeedback) RTCPFeedback {
	return RTCPFeedback{GenericNACK: f.GenericNACK && o.GenericNACK, TMMBR: f.TMMBR && o.TMMBR}
}

// FECRequest запрос на сопровождающий FEC поток
type FECRequest struct {
	Payloads    []*payload.PayloadType
	AllowBundle bool
	Transport   Transport
}

// StreamCapability локальные возможности для одного потока
type StreamCapability struct {
	Type payload.StreamType
	// Mid желаемый a=mid; если пуст, назначается автоматически
	Mid       string
	Payloads  []*payload.PayloadType
	Direction Direction

	Encryption encryption.Intent
	DTLS       *encryption.DTLSParams
	ZRTPHash   string

	BundleEligible bool
	RTCPMux        bool
	RTCPFeedback   RTCPFeedback
	RTCPXR         bool

	Ptime    int
	MaxPtime int

	Transport  Transport
	Attributes []Attribute

	FEC *FECRequest
}

// SessionCapability локальные возможности сессии; принадлежит вызову
type SessionCapability struct {
	SessionID string
	Streams   []*StreamCapability

	// BundleEnabled предлагать bundle в собственном offer
	BundleEnabled bool
	// AcceptBundles принимать bundle, предложенный удаленной стороной
	AcceptBundles bool

	RTCPXR     bool
	Attributes []Attribute
}

// RemoteStream одна m-line удаленного описания
type RemoteStream struct {
	Type    payload.StreamType
	Profile encryption.Profile
	// Formats форматы из m-line как есть (для отклоненных потоков)
	Formats   []string
	Payloads  []*payload.PayloadType
	Direction Direction
	Transport Transport

	Mid        string
	BundleOnly bool
	RTCPMux    bool

	Crypto   []encryption.CryptoSuite
	DTLS     *encryption.DTLSParams
	ZRTPHash string

	RTCPFeedback RTCPFeedback
	RTCPXR       bool

	Ptime     int
	MaxPtime  int
	Bandwidth int

	Attributes []Attribute
}

// Enabled поток с ненулевым портом (или bundle-only, который использует
// транспорт основного потока)
func (s *RemoteStream) Enabled() bool {
	return s.Transport.RTPPort > 0 || s.BundleOnly
}

// SessionDescription разобранное удаленное описание сессии
type SessionDescription struct {
	Streams []*RemoteStream
	// BundleGroups списки mid из a=group:BUNDLE
	BundleGroups [][]string
	RTCPXR       bool
	Attributes   []Attribute
}

// StreamState состояние потока в процессе согласования
type StreamState string

const (
	StateProposed StreamState = "proposed"
	StateMatched  StreamState = "matched"
	StateAccepted StreamState = "accepted"
	StateRejected StreamState = "rejected"
)

// NegotiatedStream итог согласования одной m-line
type NegotiatedStream struct {
	Type    payload.StreamType
	Ordinal int
	Mid     string
	State   StreamState
	// RejectReason причина отклонения (для журналов)
	RejectReason string

	Payloads []*payload.PayloadType
	// Formats форматы, повторяемые в отклоненной m-line
	Formats   []string
	Direction Direction

	Profile    encryption.Profile
	Encryption encryption.Mode
	AVPF       bool
	// Crypto в offer - все предлагаемые наборы, в итоге - выбранный
	Crypto         []encryption.CryptoSuite
	CryptoLocalTag int
	// DTLS локальные роль и отпечаток
	DTLS              *encryption.DTLSParams
	RemoteFingerprint string
	ZRTPHash          string
	RemoteZRTPHash    string

	BundleTag     string
	BundlePrimary bool
	BundleOnly    bool
	RTCPMux       bool

	RTCPFeedback RTCPFeedback
	RTCPXR       bool
	Ptime        int
	MaxPtime     int
	Bandwidth    int

	Transport Transport
	Multicast bool

	Attributes []Attribute
	// FECFor порядковый номер защищаемого потока, -1 если это не FEC поток
	FECFor int
}

// Rejected поток отклонен (нулевой порт)
func (s *NegotiatedStream) Rejected() bool {
	return s.State == StateRejected
}

// Accepted поток согласован
func (s *NegotiatedStream) Accepted() bool {
	return s.State == StateAccepted
}

// Chosen возвращает основной кодек потока: первый настоящий кодек,
// пригодный для отправки, иначе первый пригодный для приема.
func (s *NegotiatedStream) Chosen() *payload.PayloadType {
	var fallback *payload.PayloadType
	for _, pt := range s.Payloads {
		if pt.IsTelephoneEvent() {
			continue
		}
		if pt.HasFlag(payload.FlagCanSend) {
			return pt
		}
		if fallback == nil {
			fallback = pt
		}
	}
	return fallback
}

// Result итог согласования сессии; принадлежит вызывающей стороне
type Result struct {
	SessionID string
	Mode      Mode
	Streams   []*NegotiatedStream

	BundleGroups    []bundle.Group
	BundleConfirmed bool

	RTCPXR     bool
	Attributes []Attribute
}

// AcceptedCount количество согласованных потоков
func (r *Result) AcceptedCount() int {
	n := 0
	for _, s := range r.Streams {
		if s.Accepted() {
			n++
		}
	}
	return n
}
