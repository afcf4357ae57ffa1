package offer_answer

import (
	"errors"
	"fmt"
)

// Базовые ошибки согласования для проверки через errors.Is
var (
	// ErrSessionMalformed удаленное описание структурно некорректно
	ErrSessionMalformed = errors.New("remote session description is malformed")
	// ErrInvalidCapability локальные возможности некорректны
	ErrInvalidCapability = errors.New("local capability is invalid")
	// ErrAllStreamsRejected ни один поток не согласован
	ErrAllStreamsRejected = errors.New("all streams rejected")
	// ErrInvalidConfig некорректная конфигурация движка
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// ErrorCode код ошибки согласования
type ErrorCode int

const (
	ErrorCodeSessionMalformed ErrorCode = iota + 3000
	ErrorCodeInvalidCapability
	ErrorCodeAllStreamsRejected
	ErrorCodeInvalidConfig
	ErrorCodeInternal
)

func (c ErrorCode) sentinel() error {
	switch c {
	case ErrorCodeSessionMalformed:
		return ErrSessionMalformed
	case ErrorCodeInvalidCapability:
		return ErrInvalidCapability
	case ErrorCodeAllStreamsRejected:
		return ErrAllStreamsRejected
	case ErrorCodeInvalidConfig:
		return ErrInvalidConfig
	}
	return nil
}

// NegotiationError ошибка согласования с контекстом сессии
type NegotiationError struct {
	Code      ErrorCode
	Message   string
	SessionID string
	// Ordinal порядковый номер m-line, -1 если ошибка относится ко всей сессии
	Ordinal int
	Wrapped error
}

func newError(code ErrorCode, sessionID string, format string, args ...interface{}) *NegotiationError {
	return &NegotiationError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		SessionID: sessionID,
		Ordinal:   -1,
	}
}

func newStreamError(code ErrorCode, sessionID string, ordinal int, format string, args ...interface{}) *NegotiationError {
	err := newError(code, sessionID, format, args...)
	err.Ordinal = ordinal
	return err
}

// Error реализует интерфейс error
func (e *NegotiationError) Error() string {
	msg := fmt.Sprintf("negotiation error [%d]: %s", e.Code, e.Message)
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session: %s)", e.SessionID)
	}
	if e.Ordinal >= 0 {
		msg += fmt.Sprintf(" (m-line: %d)", e.Ordinal)
	}
	if e.Wrapped != nil {
		msg += fmt.Sprintf(" - wrapped: %v", e.Wrapped)
	}
	return msg
}

// Unwrap возвращает обернутую ошибку для поддержки errors.Is/As
func (e *NegotiationError) Unwrap() error {
	return e.Wrapped
}

// Is сопоставляет ошибку с базовой ошибкой по коду
func (e *NegotiationError) Is(target error) bool {
	s := e.Code.sentinel()
	return s != nil && s == target
}

// IsNegotiationError проверяет, является ли ошибка NegotiationError с указанным кодом
func IsNegotiationError(err error, code ErrorCode) bool {
	var ne *NegotiationError
	if !errors.As(err, &ne) {
		return false
	}
	return ne.Code == code
}
