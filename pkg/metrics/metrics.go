// Package metrics exposes prometheus collectors for routing, specialist,
// tool and HTTP activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	nodex "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"
)

const namespace = "clinic"

type Metrics struct {
	registry *prometheus.Registry

	routeDecisions     *prometheus.CounterVec
	specialistRuns     *prometheus.CounterVec
	specialistDuration *prometheus.HistogramVec
	toolCalls          *prometheus.CounterVec
	toolDuration       *prometheus.HistogramVec
	guardVerdicts      *prometheus.CounterVec
	runs               *prometheus.CounterVec
	runDuration        prometheus.Histogram
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers every collector, plus the go and process collectors, on a
// private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		routeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Router decisions by next node",
		}, []string{"next"}),
		specialistRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "specialist_runs_total",
			Help:      "Specialist activations by step and outcome",
		}, []string{"step", "outcome"}),
		specialistDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "specialist_duration_seconds",
			Help:      "Specialist activation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and status",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		guardVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_verdicts_total",
			Help:      "Input guard verdicts",
		}, []string{"allowed"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "HandleMessage runs by final phase",
		}, []string{"phase"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "HandleMessage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.routeDecisions,
		m.specialistRuns,
		m.specialistDuration,
		m.toolCalls,
		m.toolDuration,
		m.guardVerdicts,
		m.runs,
		m.runDuration,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Hooks feeds routing, specialist and guard activity into the collectors.
func (m *Metrics) Hooks() nodex.Hooks {
	return nodex.Hooks{
		OnRoute: func(next string) {
			m.routeDecisions.WithLabelValues(next).Inc()
		},
		OnSpecialist: func(step contractx.StepName, outcome contractx.Outcome, elapsed time.Duration) {
			m.specialistRuns.WithLabelValues(string(step), string(outcome)).Inc()
			m.specialistDuration.WithLabelValues(string(step)).Observe(elapsed.Seconds())
		},
		OnGuard: func(allowed bool) {
			m.guardVerdicts.WithLabelValues(strconv.FormatBool(allowed)).Inc()
		},
	}
}

// ObserveTool matches tool.Observer.
func (m *Metrics) ObserveTool(tool string, status contractx.ToolStatus, elapsed time.Duration) {
	m.toolCalls.WithLabelValues(tool, string(status)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveRun matches the orchestrator run callback.
func (m *Metrics) ObserveRun(out nodex.GraphOutput, elapsed time.Duration, err error) {
	phase := string(out.Phase)
	if err != nil {
		phase = "error"
	}
	m.runs.WithLabelValues(phase).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
