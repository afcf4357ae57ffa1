package media_sdp

import (
	"github.com/pion/sdp/v3"

	"github.com/arzzra/offer_answer/pkg/offer_answer"
)

// sdpMediaBuilder реализует интерфейс SDPMediaBuilder
type sdpMediaBuilder struct {
	*negotiationSession
	offered bool
}

// NewSDPMediaBuilder создает новый SDP Media Builder
func NewSDPMediaBuilder(config Config) (SDPMediaBuilder, error) {
	session, err := newNegotiationSession(config)
	if err != nil {
		return nil, err
	}
	return &sdpMediaBuilder{negotiationSession: session}, nil
}

// CreateOffer создает SDP offer. Повторный вызов формирует re-offer
// с теми же номерами кодеков и mid, если задана история.
func (b *sdpMediaBuilder) CreateOffer() (*sdp.SessionDescription, error) {
	if err := b.negotiate(offer_answer.ModeOffer, nil); err != nil {
		return nil, err
	}
	offer, err := b.describe(b.result)
	if err != nil {
		return nil, err
	}
	b.offered = true
	return offer, nil
}

// ProcessAnswer согласует SDP answer с отправленным offer
func (b *sdpMediaBuilder) ProcessAnswer(answer *sdp.SessionDescription) error {
	if !b.offered {
		return NewSDPErrorWithSession(ErrorCodeInvalidState, b.config.SessionID, "answer получен до отправки offer")
	}
	if answer == nil {
		return NewSDPErrorWithSession(ErrorCodeSDPParsing, b.config.SessionID, "answer не может быть nil")
	}
	if err := b.negotiate(offer_answer.ModeOffer, answer); err != nil {
		return err
	}
	b.offered = false
	return nil
}
