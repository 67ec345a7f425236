package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments for the dispatch and
// streaming paths.
type Metrics struct {
	ToolCalls      *prometheus.CounterVec
	StreamsStarted prometheus.Counter
	StreamsDone    prometheus.Counter
	StreamsAborted prometheus.Counter
	FramesEmitted  prometheus.Counter
}

// NewMetrics registers the dispatch/streaming instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memvault",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by outcome code (ok or wire error code).",
		}, []string{"code"}),
		StreamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memvault",
			Name:      "streams_started_total",
			Help:      "Resource streams that emitted at least the first pull.",
		}),
		StreamsDone: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memvault",
			Name:      "streams_done_total",
			Help:      "Resource streams that ran to normal completion.",
		}),
		StreamsAborted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memvault",
			Name:      "streams_aborted_total",
			Help:      "Resource streams terminated by generator or transport failure.",
		}),
		FramesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "memvault",
			Name:      "stream_frames_total",
			Help:      "Framed events written to resource streams.",
		}),
	}
}

func (m *Metrics) recordToolCall(e Envelope) {
	if m == nil {
		return
	}
	code := "ok"
	if e.Err != nil {
		code = string(e.Err.Code)
	}
	m.ToolCalls.WithLabelValues(code).Inc()
}
