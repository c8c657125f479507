package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ruleflow/metric"
)

const metricService = "rule-engine"

// executorMetrics tracks trigger and rule execution outcomes
type executorMetrics struct {
	triggersTotal   *prometheus.CounterVec
	rulesTotal      *prometheus.CounterVec
	actionsFailed   prometheus.Counter
	triggerDuration prometheus.Histogram
}

func newExecutorMetrics(registry *metric.Registry) (*executorMetrics, error) {
	m := &executorMetrics{
		triggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleflow_triggers_total",
			Help: "Trigger events handled, by outcome",
		}, []string{"outcome"}),
		rulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleflow_rules_executed_total",
			Help: "Rule executions, by log status",
		}, []string{"status"}),
		actionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruleflow_actions_failed_total",
			Help: "Failed action dispatches",
		}),
		triggerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ruleflow_trigger_duration_seconds",
			Help:    "End-to-end trigger handling duration",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if registry == nil {
		return m, nil
	}

	if err := registry.RegisterCounterVec(metricService, "triggers_total", m.triggersTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricService, "rules_executed_total", m.rulesTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricService, "actions_failed_total", m.actionsFailed); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(metricService, "trigger_duration_seconds", m.triggerDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *executorMetrics) observeTrigger(outcome string, elapsed time.Duration) {
	m.triggersTotal.WithLabelValues(outcome).Inc()
	m.triggerDuration.Observe(elapsed.Seconds())
}

func (m *executorMetrics) observeRule(status string, actionsFailed int) {
	m.rulesTotal.WithLabelValues(status).Inc()
	if actionsFailed > 0 {
		m.actionsFailed.Add(float64(actionsFailed))
	}
}
