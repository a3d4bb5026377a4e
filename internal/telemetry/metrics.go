package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики движка.
//
// Все методы безопасны для nil receiver, поэтому компоненты
// принимают *Metrics опционально.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	stageAttempts *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	sensorProbes  *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Для production передаётся prometheus.DefaultRegisterer,
// в тестах — prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpipe_runs_total",
			Help: "Total runs finished, by pipeline and status",
		}, []string{"pipeline", "status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockpipe_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 600, 1800, 3600},
		}, []string{"pipeline"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "stockpipe_active_runs",
			Help: "Runs currently executing",
		}),
		stageAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpipe_stage_attempts_total",
			Help: "Stage attempts, by stage and result",
		}, []string{"stage", "result"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockpipe_stage_duration_seconds",
			Help:    "Stage duration in seconds including retries",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		}, []string{"stage"}),
		sensorProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpipe_sensor_probes_total",
			Help: "Availability probes, by result",
		}, []string{"result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpipe_notifications_total",
			Help: "Terminal notifications, by result",
		}, []string{"result"}),
	}
}

// RunStarted увеличивает счётчик активных runs.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunFinished фиксирует завершение run.
func (m *Metrics) RunFinished(pipeline, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runsTotal.WithLabelValues(pipeline, status).Inc()
	m.runDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

// StageAttempt фиксирует результат одной попытки stage.
// result: "ok", "recoverable", "fatal", "timeout".
func (m *Metrics) StageAttempt(stage, result string) {
	if m == nil {
		return
	}
	m.stageAttempts.WithLabelValues(stage, result).Inc()
}

// StageDone фиксирует длительность stage со всеми попытками.
func (m *Metrics) StageDone(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SensorProbe фиксирует результат проверки доступности.
// result: "ready", "not_ready", "error".
func (m *Metrics) SensorProbe(result string) {
	if m == nil {
		return
	}
	m.sensorProbes.WithLabelValues(result).Inc()
}

// Notification фиксирует результат отправки уведомления.
func (m *Metrics) Notification(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notifications.WithLabelValues(result).Inc()
}
