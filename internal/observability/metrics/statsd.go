package metrics

import (
	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	obserrors "github.com/itiportal/portal-session/internal/observability/errors"
	"github.com/itiportal/portal-session/internal/observability/statsd"
)

// Statsd forwards session metrics to a StatsD sink.
type Statsd struct {
	sink statsd.Sink
}

var _ Sink = (*Statsd)(nil)

// NewStatsd returns nil when sink is nil so callers can pass the result to
// Multi unconditionally.
func NewStatsd(sink statsd.Sink) *Statsd {
	if sink == nil {
		return nil
	}
	return &Statsd{sink: sink}
}

func (s *Statsd) ObserveOperation(in SessionMetric) {
	tags := map[string]string{
		"operation": in.Operation,
		"trigger":   in.Trigger,
		"result":    in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	s.sink.Count("session.operation", 1, tags)
	if in.Duration > 0 {
		s.sink.Timing("session.duration", in.Duration, CloneTags(tags, "result", "error_class"))
	}
}

func (s *Statsd) ObserveState(st domainauth.State) {
	var authenticated float64
	tags := map[string]string{}
	if st.IsAuthenticated {
		authenticated = 1
		tags["role"] = string(st.Role())
	}
	s.sink.Gauge("session.authenticated", authenticated, tags)

	var loading float64
	if st.Loading {
		loading = 1
	}
	s.sink.Gauge("session.loading", loading, nil)
}

// CloneTags copies tags without the listed keys.
func CloneTags(tags map[string]string, drop ...string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	for _, k := range drop {
		delete(out, k)
	}
	return out
}

// Multi fans every observation out to each non-nil sink. It returns nil when
// no sink remains.
//
//nolint:ireturn // returns the single sink unwrapped.
func Multi(sinks ...Sink) Sink {
	var live multiSink
	for _, s := range sinks {
		if !isNil(s) {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return live
	}
}

// isNil catches typed nils such as a (*Statsd)(nil) stored in the interface.
func isNil(s Sink) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *Statsd:
		return v == nil
	case *Prometheus:
		return v == nil
	default:
		return false
	}
}

type multiSink []Sink

func (m multiSink) ObserveOperation(in SessionMetric) {
	for _, s := range m {
		s.ObserveOperation(in)
	}
}

func (m multiSink) ObserveState(st domainauth.State) {
	for _, s := range m {
		s.ObserveState(st)
	}
}
