// Package media_sdp связывает движок offer/answer с SDP (pion/sdp) и SIP
// сообщениями (sipgo): разбирает удаленное описание в модель движка и
// формирует SDP из результата согласования.
package media_sdp

import (
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/offer_answer/pkg/offer_answer"
)

// SDPMediaBuilder сторона, формирующая offer и обрабатывающая answer
type SDPMediaBuilder interface {
	// CreateOffer создает SDP offer из локальных возможностей
	CreateOffer() (*sdp.SessionDescription, error)

	// ProcessAnswer согласует полученный SDP answer с отправленным offer
	ProcessAnswer(answer *sdp.SessionDescription) error

	// Result возвращает итог последнего согласования
	Result() *offer_answer.Result
}

// SDPMediaHandler сторона, отвечающая на offer
type SDPMediaHandler interface {
	// ProcessOffer согласует входящий SDP offer с локальными возможностями
	ProcessOffer(offer *sdp.SessionDescription) error

	// CreateAnswer создает SDP answer по результату ProcessOffer
	CreateAnswer() (*sdp.SessionDescription, error)

	// Result возвращает итог последнего согласования
	Result() *offer_answer.Result
}

// SDPErrorCode определяет коды ошибок для SDP операций
type SDPErrorCode int

const (
	ErrorCodeInvalidConfig SDPErrorCode = iota + 2000
	ErrorCodeSDPGeneration
	ErrorCodeSDPParsing
	ErrorCodeInvalidFingerprint
	ErrorCodeIncompatibleSession
	ErrorCodeInvalidState
	ErrorCodeSIPMessage
)

// SDPError представляет ошибку в SDP операциях
type SDPError struct {
	Code      SDPErrorCode
	Message   string
	SessionID string
	Wrapped   error
}

// NewSDPError создает новую SDP ошибку
func NewSDPError(code SDPErrorCode, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewSDPErrorWithSession создает новую SDP ошибку с указанием сессии
func NewSDPErrorWithSession(code SDPErrorCode, sessionID string, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		SessionID: sessionID,
	}
}

// WrapSDPError оборачивает существующую ошибку в SDPError
func WrapSDPError(code SDPErrorCode, sessionID string, err error, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		SessionID: sessionID,
		Wrapped:   err,
	}
}

// Error реализует интерфейс error
func (e *SDPError) Error() string {
	msg := fmt.Sprintf("SDP Error [%d]: %s", e.Code, e.Message)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session: %s)", e.SessionID)
	}
	if e.Wrapped != nil {
		msg += fmt.Sprintf(" - Wrapped: %v", e.Wrapped)
	}
	return msg
}

// Unwrap возвращает обернутую ошибку для поддержки errors.Is/As
func (e *SDPError) Unwrap() error {
	return e.Wrapped
}

// Is: ошибки разбора описания сопоставляются с ErrSessionMalformed движка
func (e *SDPError) Is(target error) bool {
	switch e.Code {
	case ErrorCodeSDPParsing, ErrorCodeInvalidFingerprint:
		return target == offer_answer.ErrSessionMalformed
	}
	return false
}

// IsSDPError проверяет, является ли ошибка SDPError с указанным кодом
func IsSDPError(err error, code SDPErrorCode) bool {
	var sdpErr *SDPError
	if !errors.As(err, &sdpErr) {
		return false
	}
	return sdpErr.Code == code
}
