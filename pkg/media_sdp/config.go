package media_sdp

import (
	"log/slog"

	"github.com/arzzra/offer_answer/pkg/offer_answer"
	"github.com/arzzra/offer_answer/pkg/payload"
)

// Config конфигурация стороны offer/answer одного диалога
type Config struct {
	// Основные параметры сессии
	SessionID   string
	SessionName string
	Username    string
	// Address адрес для o= и c=, по умолчанию адрес первого потока
	Address string

	// Capability локальные возможности. Потоки без кодеков получают
	// кодеки из снимка Store на момент согласования.
	Capability *offer_answer.SessionCapability
	Store      *payload.CapabilityStore

	// Engine движок согласования, по умолчанию с конфигурацией DefaultConfig
	Engine *offer_answer.Engine
	// History история сессий; nil - без истории
	History *offer_answer.History

	Logger *slog.Logger
}

// DefaultConfig возвращает конфигурацию по умолчанию с одним аудио потоком
// на кодеках встроенного реестра
func DefaultConfig() Config {
	return Config{
		SessionID:   "default-session",
		SessionName: "Audio Call",
		Username:    "-",
		Capability: &offer_answer.SessionCapability{
			Streams: []*offer_answer.StreamCapability{
				{
					Type:      payload.StreamAudio,
					Direction: offer_answer.SendRecv,
					Ptime:     20,
				},
			},
		},
		Store: payload.NewCapabilityStore(),
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.SessionID == "" {
		return NewSDPError(ErrorCodeInvalidConfig, "SessionID не может быть пустым")
	}
	if c.Capability == nil || len(c.Capability.Streams) == 0 {
		return NewSDPError(ErrorCodeInvalidConfig, "Capability должен содержать хотя бы один поток")
	}
	for i, s := range c.Capability.Streams {
		if s == nil {
			return NewSDPError(ErrorCodeInvalidConfig, "поток %d не задан", i)
		}
		if len(s.Payloads) == 0 && c.Store == nil {
			return NewSDPError(ErrorCodeInvalidConfig,
				"поток %d (%s) без кодеков, а Store не задан", i, s.Type)
		}
	}
	return nil
}

// capability возвращает копию локальных возможностей с кодеками из снимка
// реестра для потоков, у которых кодеки не заданы явно
func (c *Config) capability() *offer_answer.SessionCapability {
	out := *c.Capability
	out.SessionID = c.SessionID

	var snap *payload.Snapshot
	if c.Store != nil {
		snap = c.Store.Snapshot()
	}

	out.Streams = make([]*offer_answer.StreamCapability, len(c.Capability.Streams))
	for i, s := range c.Capability.Streams {
		sc := *s
		if len(sc.Payloads) == 0 && snap != nil {
			sc.Payloads = snap.Payloads(sc.Type)
		}
		out.Streams[i] = &sc
	}
	return &out
}
