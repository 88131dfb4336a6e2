package channel

import (
	"fmt"

	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsInterceptor records channel traffic in Prometheus. A single instance
// may be shared by many channels; series are labelled by channel name.
type MetricsInterceptor struct {
	InterceptorAdapter

	sends         *prometheus.CounterVec
	sendFailures  *prometheus.CounterVec
	receives      *prometheus.CounterVec
	emptyReceives *prometheus.CounterVec
	queueSize     *prometheus.GaugeVec
}

// NewMetricsInterceptor creates the collectors and registers them with reg.
func NewMetricsInterceptor(reg prometheus.Registerer) (*MetricsInterceptor, error) {
	if reg == nil {
		return nil, fmt.Errorf("prometheus registerer cannot be nil")
	}
	m := &MetricsInterceptor{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "channel",
			Name:      "sends_total",
			Help:      "Total number of messages enqueued",
		}, []string{"channel"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "channel",
			Name:      "send_failures_total",
			Help:      "Total number of sends that were vetoed or timed out",
		}, []string{"channel"}),
		receives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "channel",
			Name:      "receives_total",
			Help:      "Total number of messages dequeued",
		}, []string{"channel"}),
		emptyReceives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "integration",
			Subsystem: "channel",
			Name:      "empty_receives_total",
			Help:      "Total number of receive attempts that yielded no message",
		}, []string{"channel"}),
		queueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "integration",
			Subsystem: "channel",
			Name:      "queue_size",
			Help:      "Number of messages currently queued",
		}, []string{"channel"}),
	}

	for _, c := range []prometheus.Collector{m.sends, m.sendFailures, m.receives, m.emptyReceives, m.queueSize} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register channel metrics: %w", err)
		}
	}
	return m, nil
}

// PostSend counts the outcome of a send.
func (m *MetricsInterceptor) PostSend(_ *message.Message, ch Channel, sent bool) {
	if sent {
		m.sends.WithLabelValues(ch.Name()).Inc()
	} else {
		m.sendFailures.WithLabelValues(ch.Name()).Inc()
	}
	m.observeSize(ch)
}

// PostReceive counts the outcome of a receive, including empty polls.
func (m *MetricsInterceptor) PostReceive(msg *message.Message, ch Channel) {
	if msg != nil {
		m.receives.WithLabelValues(ch.Name()).Inc()
	} else {
		m.emptyReceives.WithLabelValues(ch.Name()).Inc()
	}
	m.observeSize(ch)
}

func (m *MetricsInterceptor) observeSize(ch Channel) {
	if sized, ok := ch.(interface{ Size() int }); ok {
		m.queueSize.WithLabelValues(ch.Name()).Set(float64(sized.Size()))
	}
}
