package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	obserrors "github.com/itiportal/portal-session/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Operation and trigger label values.
const (
	OpLogin   = "login"
	OpLogout  = "logout"
	OpRefresh = "refresh"

	TriggerStartup  = "startup"
	TriggerLogin    = "login"
	TriggerExplicit = "explicit"
)

// SessionMetric captures one session operation for metric emission.
type SessionMetric struct {
	Operation string
	Trigger   string
	Result    string
	Duration  time.Duration
	Err       error
}

// Sink receives session metrics. A nil Sink is valid and drops everything.
type Sink interface {
	ObserveOperation(in SessionMetric)
	ObserveState(st domainauth.State)
}

// EmitSession forwards in to sink when sink is non-nil.
func EmitSession(sink Sink, in SessionMetric) {
	if sink == nil {
		return
	}
	sink.ObserveOperation(in)
}

// StateObserver adapts sink to a session subscriber callback.
func StateObserver(sink Sink) func(domainauth.State) {
	return func(st domainauth.State) {
		if sink != nil {
			sink.ObserveState(st)
		}
	}
}

// Prometheus implements Sink with client_golang collectors.
type Prometheus struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	authenticated *prometheus.GaugeVec
	loading       prometheus.Gauge
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus creates the session collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session operations by outcome.",
		}, []string{"operation", "trigger", "result", "error_class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "session",
			Name:      "operation_duration_seconds",
			Help:      "Duration of session operations including remote calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "trigger"}),
		authenticated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "portal",
			Subsystem: "session",
			Name:      "authenticated",
			Help:      "1 while a session is authenticated, labelled by role.",
		}, []string{"role"}),
		loading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portal",
			Subsystem: "session",
			Name:      "loading",
			Help:      "1 while the session is reconciling or logging out.",
		}),
	}

	for _, c := range []prometheus.Collector{p.operations, p.duration, p.authenticated, p.loading} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveOperation(in SessionMetric) {
	class := ""
	if in.Err != nil && in.Result == ResultError {
		class = obserrors.Classify(in.Err)
	}
	p.operations.WithLabelValues(in.Operation, in.Trigger, in.Result, class).Inc()
	if in.Duration > 0 {
		p.duration.WithLabelValues(in.Operation, in.Trigger).Observe(in.Duration.Seconds())
	}
}

func (p *Prometheus) ObserveState(st domainauth.State) {
	p.authenticated.Reset()
	if st.IsAuthenticated {
		p.authenticated.WithLabelValues(string(st.Role())).Set(1)
	}
	if st.Loading {
		p.loading.Set(1)
	} else {
		p.loading.Set(0)
	}
}
