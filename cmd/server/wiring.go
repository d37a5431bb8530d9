package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/ZanzyTHEbar/quakesim/internal/analysis"
	"github.com/ZanzyTHEbar/quakesim/internal/config"
	"github.com/ZanzyTHEbar/quakesim/internal/events"
	"github.com/ZanzyTHEbar/quakesim/internal/model"
	"github.com/ZanzyTHEbar/quakesim/internal/resilience"
)

// newPublisher connects the configured brokers. A broker that cannot be
// reached is logged and skipped so history keeps working without events.
func newPublisher(cfg config.EventsConfig) events.Publisher {
	var publishers events.Multi

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			slog.Error("Kafka publisher disabled", "error", err)
		} else {
			slog.Info("Publishing simulation events to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
			publishers = append(publishers, p)
		}
	}

	if cfg.MQTT.Broker != "" {
		p, err := events.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			slog.Error("MQTT publisher disabled", "error", err)
		} else {
			slog.Info("Publishing simulation events to MQTT", "broker", cfg.MQTT.Broker, "topic", p.Topic())
			publishers = append(publishers, p)
		}
	}

	switch len(publishers) {
	case 0:
		return events.Noop{}
	case 1:
		return publishers[0]
	}
	return publishers
}

// loadModel fetches the bundle with retries and applies the calibration
// stored under <data dir>/calibration for it, if any.
func loadModel(ctx context.Context, cfg *config.Config) (*model.Model, error) {
	opts := model.LoadOptions{
		Artifact: cfg.Model.Artifact,
		CacheDir: cfg.Model.CacheDir,
	}
	if opts.CacheDir == "" {
		opts.CacheDir = path.Join(cfg.DataDir, "models")
	}

	calibration, err := analysis.NewCalibrationStore(path.Join(cfg.DataDir, "calibration")).LoadCalibration(bundleName(cfg.Model.URI))
	if err != nil {
		return nil, err
	}
	opts.Options = append(opts.Options, model.WithCalibration(calibration))

	retry := resilience.DefaultRetryConfig()
	retry.RetryableErrors = nil // retry every load failure

	var loaded *model.Model
	err = resilience.RetryWithConfig(ctx, retry, func() error {
		m, err := model.Load(ctx, cfg.Model.URI, opts)
		if err != nil {
			slog.Warn("Model load attempt failed", "uri", cfg.Model.URI, "error", err)
			return err
		}
		loaded = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.Model.URI, err)
	}
	return loaded, nil
}

// bundleName is the file name of a bundle URI without its extension.
func bundleName(uri string) string {
	base := path.Base(strings.TrimRight(uri, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
