package media_sdp

import (
	"strings"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/sdp/v3"
)

// ContentTypeSDP тип тела SIP сообщения с SDP
const ContentTypeSDP = "application/sdp"

const (
	statusNotAcceptableHere   = 488
	statusInternalServerError = 500
)

// ExtractSDP извлекает SDP из тела SIP сообщения (INVITE, 200 OK, UPDATE, ACK)
func ExtractSDP(msg sip.Message) (*sdp.SessionDescription, error) {
	body := msg.Body()
	if len(body) == 0 {
		return nil, NewSDPError(ErrorCodeSIPMessage, "сообщение не содержит тела")
	}
	if h := msg.GetHeader("Content-Type"); h != nil && !isSDPContentType(h.Value()) {
		return nil, NewSDPError(ErrorCodeSIPMessage, "неожиданный Content-Type: %s", h.Value())
	}
	return UnmarshalSessionDescription(body)
}

// AttachSDP записывает SDP в тело SIP сообщения и выставляет Content-Type
func AttachSDP(msg sip.Message, desc *sdp.SessionDescription) error {
	if desc == nil {
		return NewSDPError(ErrorCodeSDPGeneration, "SDP не может быть nil")
	}
	body, err := desc.Marshal()
	if err != nil {
		return WrapSDPError(ErrorCodeSDPGeneration, "", err, "не удалось сериализовать SDP")
	}

	ct := sip.NewHeader("Content-Type", ContentTypeSDP)
	if msg.GetHeader("Content-Type") != nil {
		msg.ReplaceHeader(ct)
	} else {
		msg.AppendHeader(ct)
	}
	msg.SetBody(body)
	return nil
}

// AttachOffer создает offer и записывает его в исходящий запрос
func AttachOffer(builder SDPMediaBuilder, req *sip.Request) error {
	offer, err := builder.CreateOffer()
	if err != nil {
		return err
	}
	return AttachSDP(req, offer)
}

// ProcessAnswerResponse извлекает answer из ответа и согласует его
func ProcessAnswerResponse(builder SDPMediaBuilder, res *sip.Response) error {
	answer, err := ExtractSDP(res)
	if err != nil {
		return err
	}
	return builder.ProcessAnswer(answer)
}

// AnswerInvite обрабатывает offer из INVITE (или re-INVITE) и возвращает
// ответ: 200 OK с answer, 400 при некорректном SDP, 488 если медиа
// несовместимы. Ошибка возвращается вместе с отказным ответом.
func AnswerInvite(handler SDPMediaHandler, req *sip.Request) (*sip.Response, error) {
	offer, err := ExtractSDP(req)
	if err != nil {
		return sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Bad Request", nil), err
	}

	if err := handler.ProcessOffer(offer); err != nil {
		if IsSDPError(err, ErrorCodeSDPParsing) || IsSDPError(err, ErrorCodeInvalidFingerprint) {
			return sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Bad Request", nil), err
		}
		return sip.NewResponseFromRequest(req, statusNotAcceptableHere, "Not Acceptable Here", nil), err
	}

	answer, err := handler.CreateAnswer()
	if err != nil {
		return sip.NewResponseFromRequest(req, statusInternalServerError, "Server Internal Error", nil), err
	}

	res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := AttachSDP(res, answer); err != nil {
		return sip.NewResponseFromRequest(req, statusInternalServerError, "Server Internal Error", nil), err
	}
	return res, nil
}

func isSDPContentType(value string) bool {
	mediaType, _, _ := strings.Cut(value, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), ContentTypeSDP)
}
