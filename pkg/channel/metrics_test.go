package channel_test

import (
	"testing"

	"github.com/illmade-knight/go-integration/pkg/channel"
	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsInterceptor(t *testing.T) {
	// Arrange
	reg := prometheus.NewRegistry()
	metrics, err := channel.NewMetricsInterceptor(reg)
	require.NoError(t, err)

	ch := newTestChannel(t, 1)
	ch.AddInterceptor(metrics)

	// Act
	_, _ = ch.Send(message.New("a"), channel.NoWait)
	_, _ = ch.Send(message.New("b"), channel.NoWait) // full
	_, _ = ch.Receive(channel.NoWait)
	_, _ = ch.Receive(channel.NoWait) // empty

	// Assert
	assert.Equal(t, 1.0, metricValue(t, reg, "integration_channel_sends_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "integration_channel_send_failures_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "integration_channel_receives_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "integration_channel_empty_receives_total"))
	assert.Equal(t, 0.0, metricValue(t, reg, "integration_channel_queue_size"))

	count, err := testutil.GatherAndCount(reg, "integration_channel_sends_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series per channel")
}

func TestMetricsInterceptor_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := channel.NewMetricsInterceptor(reg)
	require.NoError(t, err)

	_, err = channel.NewMetricsInterceptor(reg)

	require.Error(t, err)
}

// metricValue returns the value of the named metric for the "test" channel.
func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "channel" && lp.GetValue() == "test" {
					if m.GetGauge() != nil {
						return m.GetGauge().GetValue()
					}
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
