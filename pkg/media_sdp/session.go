package media_sdp

import (
	"errors"
	"log/slog"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/offer_answer/pkg/offer_answer"
)

// negotiationSession общее состояние builder и handler одного диалога
type negotiationSession struct {
	config Config
	engine *offer_answer.Engine
	origin Origin
	result *offer_answer.Result
	logger *slog.Logger
}

func newNegotiationSession(config Config) (*negotiationSession, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "media_sdp"), slog.String("session", config.SessionID))

	engine := config.Engine
	if engine == nil {
		cfg := offer_answer.DefaultConfig()
		cfg.Logger = logger
		var err error
		engine, err = offer_answer.NewEngine(cfg)
		if err != nil {
			return nil, WrapSDPError(ErrorCodeInvalidConfig, config.SessionID, err, "не удалось создать движок")
		}
	}

	now := uint64(time.Now().Unix())
	return &negotiationSession{
		config: config,
		engine: engine,
		origin: Origin{
			Username:       config.Username,
			SessionID:      now,
			SessionVersion: now,
			Address:        config.Address,
			SessionName:    config.SessionName,
		},
		logger: logger,
	}, nil
}

// negotiate запускает движок и сохраняет результат. Результат сохраняется
// и тогда, когда все потоки отклонены: по нему формируется отказной answer.
func (s *negotiationSession) negotiate(mode offer_answer.Mode, remote *sdp.SessionDescription) error {
	var desc *offer_answer.SessionDescription
	if remote != nil {
		var err error
		desc, err = ParseSessionDescription(remote)
		if err != nil {
			if sdpErr, ok := err.(*SDPError); ok {
				sdpErr.SessionID = s.config.SessionID
			}
			return err
		}
	}

	res, err := s.engine.Negotiate(mode, s.config.capability(), desc, s.config.History)
	if res != nil {
		s.result = res
	}
	if err != nil {
		if errors.Is(err, offer_answer.ErrSessionMalformed) {
			return WrapSDPError(ErrorCodeSDPParsing, s.config.SessionID, err, "некорректное удаленное описание")
		}
		if errors.Is(err, offer_answer.ErrInvalidCapability) {
			return WrapSDPError(ErrorCodeInvalidConfig, s.config.SessionID, err, "некорректные локальные возможности")
		}
		return WrapSDPError(ErrorCodeIncompatibleSession, s.config.SessionID, err, "согласование не удалось")
	}

	s.logger.Debug("согласование завершено",
		slog.String("mode", mode.String()),
		slog.Int("streams", len(res.Streams)),
		slog.Int("accepted", res.AcceptedCount()))
	return nil
}

// describe формирует SDP по результату; версия o= растет с каждым описанием
func (s *negotiationSession) describe(res *offer_answer.Result) (*sdp.SessionDescription, error) {
	s.origin.SessionVersion++
	desc, err := BuildSessionDescription(res, s.origin)
	if err != nil {
		if sdpErr, ok := err.(*SDPError); ok {
			sdpErr.SessionID = s.config.SessionID
		}
		return nil, err
	}
	return desc, nil
}

// Result возвращает итог последнего согласования
func (s *negotiationSession) Result() *offer_answer.Result {
	return s.result
}
