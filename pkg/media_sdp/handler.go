package media_sdp

import (
	"github.com/pion/sdp/v3"

	"github.com/arzzra/offer_answer/pkg/offer_answer"
)

// sdpMediaHandler реализует интерфейс SDPMediaHandler
type sdpMediaHandler struct {
	*negotiationSession
}

// NewSDPMediaHandler создает новый SDP Media Handler
func NewSDPMediaHandler(config Config) (SDPMediaHandler, error) {
	session, err := newNegotiationSession(config)
	if err != nil {
		return nil, err
	}
	return &sdpMediaHandler{negotiationSession: session}, nil
}

// ProcessOffer согласует входящий offer. Если отклонены все потоки,
// возвращается ошибка, но CreateAnswer все равно формирует answer
// с нулевыми портами.
func (h *sdpMediaHandler) ProcessOffer(offer *sdp.SessionDescription) error {
	if offer == nil {
		return NewSDPErrorWithSession(ErrorCodeSDPParsing, h.config.SessionID, "offer не может быть nil")
	}
	h.result = nil
	return h.negotiate(offer_answer.ModeAnswer, offer)
}

// CreateAnswer создает SDP answer по результату ProcessOffer
func (h *sdpMediaHandler) CreateAnswer() (*sdp.SessionDescription, error) {
	if h.result == nil || h.result.Mode != offer_answer.ModeAnswer {
		return nil, NewSDPErrorWithSession(ErrorCodeInvalidState, h.config.SessionID, "offer еще не обработан")
	}
	return h.describe(h.result)
}
