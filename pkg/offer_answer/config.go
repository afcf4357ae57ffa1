package offer_answer

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/imdario/mergo"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Config конфигурация движка согласования
type Config struct {
	// OneMatchingCodec в ответе оставлять только первый общий кодек
	// (плюс telephone-event)
	OneMatchingCodec bool `yaml:"one_matching_codec"`
	// DropCompatibilityPayloads не добавлять при чтении ответа локальные
	// кодеки только на прием
	DropCompatibilityPayloads bool `yaml:"drop_compatibility_payloads"`
	// HistoryCapacity максимальное число сессий в истории
	HistoryCapacity int `yaml:"history_capacity"`
	// MetricsNamespace префикс Prometheus метрик
	MetricsNamespace string `yaml:"metrics_namespace"`

	Logger *slog.Logger `yaml:"-"`
	// Registerer реестр метрик; nil отключает метрики
	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:  1024,
		MetricsNamespace: "offer_answer",
		Logger:           slog.Default(),
	}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.HistoryCapacity <= 0 {
		return &NegotiationError{Code: ErrorCodeInvalidConfig, Ordinal: -1,
			Message: fmt.Sprintf("history_capacity должен быть больше 0, получено %d", c.HistoryCapacity)}
	}
	if c.MetricsNamespace == "" {
		return &NegotiationError{Code: ErrorCodeInvalidConfig, Ordinal: -1,
			Message: "metrics_namespace не может быть пустым"}
	}
	return nil
}

// withDefaults дополняет незаданные поля значениями по умолчанию
func (c Config) withDefaults() (Config, error) {
	defaults := DefaultConfig()
	defaults.Logger = nil
	if err := mergo.Merge(&c, defaults); err != nil {
		return c, &NegotiationError{Code: ErrorCodeInvalidConfig, Ordinal: -1,
			Message: "не удалось применить значения по умолчанию", Wrapped: err}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// LoadConfig читает YAML конфигурацию; отсутствующие ключи получают
// значения по умолчанию
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, &NegotiationError{Code: ErrorCodeInvalidConfig, Ordinal: -1,
			Message: "не удалось разобрать конфигурацию", Wrapped: err}
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
