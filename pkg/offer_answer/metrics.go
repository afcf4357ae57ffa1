package offer_answer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics Prometheus метрики движка. Нулевой указатель допустим и
// означает отключенные метрики.
type Metrics struct {
	negotiations *prometheus.CounterVec
	streams      *prometheus.CounterVec
	encryption   *prometheus.CounterVec
	historySize  prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg. При reg == nil возвращает nil.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		negotiations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "negotiations_total",
			Help:      "Количество вызовов согласования по режиму и исходу",
		}, []string{"mode", "outcome"}),
		streams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "results_total",
			Help:      "Количество согласованных и отклоненных потоков",
		}, []string{"type", "state"}),
		encryption: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "encryption_total",
			Help:      "Выбранный режим шифрования согласованных потоков",
		}, []string{"mode"}),
		historySize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "sessions",
			Help:      "Количество сессий в истории согласований",
		}),
	}
}

func (m *Metrics) observe(res *Result, outcome string) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(res.Mode.String(), outcome).Inc()
	for _, s := range res.Streams {
		m.streams.WithLabelValues(string(s.Type), string(s.State)).Inc()
		if s.Accepted() {
			m.encryption.WithLabelValues(s.Encryption.String()).Inc()
		}
	}
}

func (m *Metrics) failed(mode Mode, outcome string) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(mode.String(), outcome).Inc()
}

func (m *Metrics) setHistorySize(n int) {
	if m == nil {
		return
	}
	m.historySize.Set(float64(n))
}
