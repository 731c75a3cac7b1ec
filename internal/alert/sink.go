package alert

import (
	"fmt"
	"io"

	"orderpay-be/internal/config"
	"orderpay-be/internal/metrics"
)

// FromConfig builds the alerter selected by ALERT_SINK. Broker-backed sinks
// fall back to the log sink when a publish fails. The returned closer is nil
// for the log sink.
func FromConfig(cfg *config.Config, m *metrics.Metrics) (Alerter, io.Closer, error) {
	switch cfg.AlertSink {
	case "", "log":
		return LogAlerter{}, nil, nil
	case "kafka":
		k, err := NewKafkaAlerter(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		if err != nil {
			return nil, nil, err
		}
		return WithFallback(k, LogAlerter{}, m), k, nil
	case "redis":
		r, err := NewRedisAlerter(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return WithFallback(r, LogAlerter{}, m), r, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown alert sink %q", config.ErrConfiguration, cfg.AlertSink)
	}
}
