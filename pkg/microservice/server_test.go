package microservice_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/illmade-knight/go-integration/pkg/channel"
	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/illmade-knight/go-integration/pkg/microservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzHandler(t *testing.T) {
	rec := httptest.NewRecorder()

	microservice.HealthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBaseServer_ServesMetrics(t *testing.T) {
	// Arrange
	reg := prometheus.NewRegistry()
	metrics, err := channel.NewMetricsInterceptor(reg)
	require.NoError(t, err)
	ch, err := channel.NewSimpleChannel("orders", 0, zerolog.Nop())
	require.NoError(t, err)
	ch.AddInterceptor(metrics)
	_, err = ch.Send(message.New("x"), channel.NoWait)
	require.NoError(t, err)

	server := microservice.NewBaseServer(zerolog.Nop(), ":0", reg)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	base := "http://localhost" + server.GetHTTPPort()

	// Act
	healthResp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	metricsResp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `integration_channel_sends_total{channel="orders"} 1`)
}

func TestBaseServer_NoGathererHasNoMetrics(t *testing.T) {
	server := microservice.NewBaseServer(zerolog.Nop(), ":0", nil)
	rec := httptest.NewRecorder()

	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBaseServer_StartFailsOnBadAddress(t *testing.T) {
	server := microservice.NewBaseServer(zerolog.Nop(), "not-an-address", nil)
	assert.Error(t, server.Start())
}
