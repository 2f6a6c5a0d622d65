// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trading metrics
	TradesExecuted *prometheus.CounterVec
	TradesRejected *prometheus.CounterVec
	TradeVolume    *prometheus.CounterVec
	RiskScore      prometheus.Histogram
	TradeLatency   prometheus.Histogram

	// Curve metrics
	TokensRegistered prometheus.Gauge
	CurvePrice       *prometheus.GaugeVec

	// Graduation metrics
	GraduationsReady prometheus.Counter
	GraduationEvents *prometheus.CounterVec

	// Collaborator metrics
	CollaboratorLatency *prometheus.HistogramVec

	// Notification metrics
	NotificationsDropped prometheus.Counter
	WSClients            prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	SessionsSwept prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "fairlaunch"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Trading metrics
		TradesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_executed_total",
			Help:      "Total number of trades applied to a curve, by direction",
		}, []string{"direction"}),
		TradesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_rejected_total",
			Help:      "Total number of trade attempts not executed, by error kind",
		}, []string{"kind"}),
		TradeVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "quote_volume_total",
			Help:      "Quote currency moved through curves, by direction",
		}, []string{"direction"}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "score",
			Help:      "Distribution of risk scores",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		TradeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "execute_latency_seconds",
			Help:      "Trade execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Curve metrics
		TokensRegistered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "tokens_registered",
			Help:      "Number of tokens with a live curve",
		}),
		CurvePrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "price",
			Help:      "Current curve price by token",
		}, []string{"token"}),

		// Graduation metrics
		GraduationsReady: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "ready_total",
			Help:      "Total number of tokens that reached the graduation threshold",
		}),
		GraduationEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "attempts_total",
			Help:      "Total number of graduation attempts by outcome",
		}, []string{"outcome"}),

		// Collaborator metrics
		CollaboratorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "call_latency_seconds",
			Help:      "External collaborator call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator", "outcome"}),

		// Notification metrics
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Total number of notifications dropped for slow subscribers",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "ws_clients",
			Help:      "Number of connected websocket clients",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		SessionsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "sessions_swept_total",
			Help:      "Total number of idle trading sessions evicted",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTradeExecuted records an applied trade.
func RecordTradeExecuted(direction string, quoteAmount float64) {
	DefaultMetrics.TradesExecuted.WithLabelValues(direction).Inc()
	DefaultMetrics.TradeVolume.WithLabelValues(direction).Add(quoteAmount)
}

// RecordTradeRejected records an attempt that did not execute.
func RecordTradeRejected(kind string) {
	DefaultMetrics.TradesRejected.WithLabelValues(kind).Inc()
}

// RecordRiskScore observes one assessment score.
func RecordRiskScore(score int) {
	DefaultMetrics.RiskScore.Observe(float64(score))
}

// RecordTradeLatency observes one Execute call.
func RecordTradeLatency(seconds float64) {
	DefaultMetrics.TradeLatency.Observe(seconds)
}

// UpdateCurvePrice sets the price gauge of a token.
func UpdateCurvePrice(tokenID string, price float64) {
	DefaultMetrics.CurvePrice.WithLabelValues(tokenID).Set(price)
}

// UpdateTokensRegistered sets the registered tokens gauge.
func UpdateTokensRegistered(n int) {
	DefaultMetrics.TokensRegistered.Set(float64(n))
}

// RecordGraduationReady increments the ready counter.
func RecordGraduationReady() {
	DefaultMetrics.GraduationsReady.Inc()
}

// RecordGraduation records a graduation attempt outcome.
func RecordGraduation(outcome string) {
	DefaultMetrics.GraduationEvents.WithLabelValues(outcome).Inc()
}

// RecordCollaboratorCall records collaborator call latency.
func RecordCollaboratorCall(collaborator string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	DefaultMetrics.CollaboratorLatency.WithLabelValues(collaborator, outcome).Observe(seconds)
}

// RecordNotificationDropped increments the dropped notifications counter.
func RecordNotificationDropped() {
	DefaultMetrics.NotificationsDropped.Inc()
}

// UpdateWSClients sets the connected websocket clients gauge.
func UpdateWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordSessionsSwept adds evicted sessions.
func RecordSessionsSwept(n int) {
	DefaultMetrics.SessionsSwept.Add(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
