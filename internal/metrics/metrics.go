// Package metrics собирает метрики Prometheus для шлюза доступа, журнала запросов
// и фоновой деактивации планов. Все методы безопасны для nil-получателя.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ent_insight"

// Collector хранит метрики сервиса.
type Collector struct {
	GateDecisions  *prometheus.CounterVec
	GateErrors     *prometheus.CounterVec
	LogWrites      *prometheus.CounterVec
	LogQueueDepth  prometheus.Gauge
	PlansSwept     prometheus.Counter
	PlanEvents     *prometheus.CounterVec
	RateLimitHits  prometheus.Counter
	RequestLatency *prometheus.HistogramVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Access gate decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		GateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_store_errors_total",
			Help:      "Store errors seen by the access gate, by failure mode",
		}, []string{"mode"}),
		LogWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_log_writes_total",
			Help:      "Request log write attempts by result",
		}, []string{"result"}),
		LogQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "request_log_queue_depth",
			Help:      "Entries waiting in the request log queue",
		}),
		PlansSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_swept_total",
			Help:      "Expired plans deactivated by the sweep",
		}),
		PlanEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_events_total",
			Help:      "Plan lifecycle events by type and publish result",
		}, []string{"type", "result"}),
		RateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the per-user rate limiter",
		}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "metered_request_duration_seconds",
			Help:      "Duration of admitted metered requests",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(c.GateDecisions, c.GateErrors, c.LogWrites, c.LogQueueDepth,
			c.PlansSwept, c.PlanEvents, c.RateLimitHits, c.RequestLatency)
	}
	return c
}

// Decision учитывает решение шлюза.
func (c *Collector) Decision(outcome, reason string) {
	if c == nil {
		return
	}
	c.GateDecisions.WithLabelValues(outcome, reason).Inc()
}

// GateError учитывает ошибку хранилища в шлюзе.
func (c *Collector) GateError(mode string) {
	if c == nil {
		return
	}
	c.GateErrors.WithLabelValues(mode).Inc()
}

// LogWrite учитывает попытку записи в журнал: written, failed или dropped.
func (c *Collector) LogWrite(result string) {
	if c == nil {
		return
	}
	c.LogWrites.WithLabelValues(result).Inc()
}

// QueueDepth выставляет текущую длину очереди журнала.
func (c *Collector) QueueDepth(n int) {
	if c == nil {
		return
	}
	c.LogQueueDepth.Set(float64(n))
}

// Swept учитывает деактивированные планы.
func (c *Collector) Swept(n int) {
	if c == nil {
		return
	}
	c.PlansSwept.Add(float64(n))
}

// PlanEvent учитывает публикацию события плана.
func (c *Collector) PlanEvent(eventType, result string) {
	if c == nil {
		return
	}
	c.PlanEvents.WithLabelValues(eventType, result).Inc()
}

// RateLimited учитывает отказ ограничителя частоты.
func (c *Collector) RateLimited() {
	if c == nil {
		return
	}
	c.RateLimitHits.Inc()
}

// ObserveRequest учитывает длительность пропущенного запроса.
func (c *Collector) ObserveRequest(status string, seconds float64) {
	if c == nil {
		return
	}
	c.RequestLatency.WithLabelValues(status).Observe(seconds)
}
