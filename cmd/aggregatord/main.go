// Command aggregatord runs a set of in-process channels and aggregator
// endpoints described by a YAML file, exposing /healthz and /metrics.
//
// It has no ingress of its own: input channels are fed by code embedded in the
// same process, so on its own the binary idles serving health and metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-integration/pkg/aggregator"
	"github.com/illmade-knight/go-integration/pkg/channel"
	"github.com/illmade-knight/go-integration/pkg/config"
	"github.com/illmade-knight/go-integration/pkg/endpoint"
	"github.com/illmade-knight/go-integration/pkg/message"
	"github.com/illmade-knight/go-integration/pkg/microservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "aggregatord.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aggregatord: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aggregatord: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("aggregatord failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := channel.NewMetricsInterceptor(reg)
	if err != nil {
		return err
	}

	errorChannel, err := channel.NewErrorChannel(*cfg.ErrorChannelCapacity, logger)
	if err != nil {
		return err
	}
	errorChannel.AddInterceptor(metrics)

	channels := make(map[string]*channel.SimpleChannel, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		ch, err := channel.NewSimpleChannel(cc.Name, cc.Capacity, logger)
		if err != nil {
			return err
		}
		ch.AddInterceptor(metrics)
		channels[cc.Name] = ch
	}

	var consumers []*endpoint.PollingConsumer
	var aggregators []*aggregator.Aggregator[string]
	outputs := make(map[string]bool)

	for _, ac := range cfg.Aggregators {
		agg, err := buildAggregator(ac, channels, logger)
		if err != nil {
			return fmt.Errorf("aggregator '%s': %w", ac.Name, err)
		}
		consumer, err := endpoint.NewPollingConsumer(
			endpoint.PollingConsumerConfig{NumWorkers: ac.Workers},
			channels[ac.Input], agg, channels[ac.Output], errorChannel, logger,
		)
		if err != nil {
			return fmt.Errorf("aggregator '%s': %w", ac.Name, err)
		}
		aggregators = append(aggregators, agg)
		consumers = append(consumers, consumer)
		outputs[ac.Output] = true
	}

	// Outputs not read by another aggregator are drained and logged.
	for _, ac := range cfg.Aggregators {
		delete(outputs, ac.Input)
	}
	for name := range outputs {
		drain, err := endpoint.NewPollingConsumer(endpoint.PollingConsumerConfig{}, channels[name], logResults(logger, name), nil, errorChannel, logger)
		if err != nil {
			return err
		}
		consumers = append(consumers, drain)
	}

	// The error channel logs on send; draining it keeps it from filling up.
	errorDrain, err := endpoint.NewPollingConsumer(endpoint.PollingConsumerConfig{}, errorChannel,
		endpoint.HandlerFunc(func(*message.Message) (*message.Message, error) { return nil, nil }), nil, nil, logger)
	if err != nil {
		return err
	}
	consumers = append(consumers, errorDrain)

	server := microservice.NewBaseServer(logger, cfg.HTTPPort, reg)
	if err := server.Start(); err != nil {
		return err
	}

	for _, agg := range aggregators {
		if err := agg.Start(ctx); err != nil {
			return err
		}
	}
	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}

	logger.Info().Int("channels", len(channels)).Int("aggregators", len(aggregators)).Msg("aggregatord running")
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, c := range consumers {
		if err := c.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Consumer did not stop cleanly.")
		}
	}
	for _, agg := range aggregators {
		agg.Stop()
		if n := agg.GroupCount(); n > 0 {
			logger.Warn().Int("groups", n).Msg("Discarding incomplete groups on shutdown.")
		}
	}
	return server.Shutdown(shutdownCtx)
}

func buildAggregator(ac config.AggregatorConfig, channels map[string]*channel.SimpleChannel, logger zerolog.Logger) (*aggregator.Aggregator[string], error) {
	completion := aggregator.SequenceSizeCompletion(ac.SequenceHeader)
	if ac.SequenceSize > 0 {
		completion = aggregator.SizeCompletion(ac.SequenceSize)
	}

	aggCfg := aggregator.Config{
		Name:                  ac.Name,
		GroupTimeout:          ac.GroupTimeout,
		CompletedKeyCacheSize: ac.TrackCompleted,
	}
	if ac.Discard != "" {
		aggCfg.DiscardChannel = channels[ac.Discard]
	}

	return aggregator.New[string](
		aggCfg,
		aggregator.HeaderCorrelation(ac.CorrelationHeader),
		completion,
		aggregator.PayloadReducer(concatPayloads),
		logger,
	)
}

// concatPayloads reduces a group to the ordered list of its payloads.
func concatPayloads(payloads []any) (any, error) {
	out := make([]any, len(payloads))
	copy(out, payloads)
	return out, nil
}

func logResults(logger zerolog.Logger, channelName string) endpoint.Handler {
	l := logger.With().Str("channel", channelName).Logger()
	return endpoint.HandlerFunc(func(msg *message.Message) (*message.Message, error) {
		l.Info().Str("msg_id", msg.ID.String()).Interface("payload", msg.Payload).Msg("Aggregate produced.")
		return nil, nil
	})
}
