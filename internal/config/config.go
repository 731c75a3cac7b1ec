package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ErrConfiguration marks a missing or malformed setting. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	GatewayTimeout   time.Duration

	// WebhookSecret keys the HMAC that gateway callbacks are signed with.
	WebhookSecret string
	JWTSecret     string
	// InternalKey lets trusted services past the strict rate tier.
	InternalKey string

	StoreCurrency      string
	SettlementCurrency string
	FXRate             decimal.Decimal

	AlertSink       string
	KafkaBrokers    string
	KafkaAlertTopic string
	RedisURL        string
	SweepInterval   time.Duration
	SweepGrace      time.Duration
}

// Load reads .env (when present) and the process environment, then validates.
// A nil error guarantees every required setting is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:             os.Getenv("DB_HOST"),
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBName:             os.Getenv("DB_NAME"),
		DBPort:             getenv("DB_PORT", "5432"),
		AppPort:            getenv("APP_PORT", "8080"),
		AppEnv:             getenv("APP_ENV", "development"),
		GatewayBaseURL:     strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api.razorpay.com"), "/"),
		GatewayKeyID:       os.Getenv("GATEWAY_KEY_ID"),
		GatewayKeySecret:   os.Getenv("GATEWAY_KEY_SECRET"),
		WebhookSecret:      os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		InternalKey:        os.Getenv("INTERNAL_SECRET_KEY"),
		StoreCurrency:      strings.ToUpper(getenv("STORE_CURRENCY", "USD")),
		SettlementCurrency: strings.ToUpper(getenv("SETTLEMENT_CURRENCY", "INR")),
		AlertSink:          strings.ToLower(getenv("ALERT_SINK", "log")),
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		KafkaAlertTopic:    getenv("KAFKA_ALERT_TOPIC", "orderpay.alerts"),
		RedisURL:           os.Getenv("REDIS_URL"),
	}

	var problems []string

	rate, err := decimal.NewFromString(getenv("FX_RATE", "73.25"))
	if err != nil || !rate.IsPositive() {
		problems = append(problems, "FX_RATE must be a positive decimal")
	}
	cfg.FXRate = rate

	cfg.GatewayTimeout = parseDuration("GATEWAY_TIMEOUT", "15s", &problems)
	cfg.SweepInterval = parseDuration("SWEEP_INTERVAL", "5m", &problems)
	cfg.SweepGrace = parseDuration("SWEEP_GRACE", "2m", &problems)

	if err := cfg.validate(problems); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(problems []string) error {
	required := []struct{ key, value string }{
		{"DB_HOST", c.DBHost},
		{"DB_USER", c.DBUser},
		{"DB_NAME", c.DBName},
		{"GATEWAY_KEY_ID", c.GatewayKeyID},
		{"GATEWAY_KEY_SECRET", c.GatewayKeySecret},
		{"PAYMENT_WEBHOOK_SECRET", c.WebhookSecret},
		{"JWT_SECRET", c.JWTSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.key+" is required")
		}
	}

	switch c.AlertSink {
	case "log":
	case "kafka":
		if c.KafkaBrokers == "" {
			problems = append(problems, "KAFKA_BROKERS is required when ALERT_SINK=kafka")
		}
	case "redis":
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required when ALERT_SINK=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("ALERT_SINK %q is not one of log, kafka, redis", c.AlertSink))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func parseDuration(key, def string, problems *[]string) time.Duration {
	d, err := time.ParseDuration(getenv(key, def))
	if err != nil || d <= 0 {
		*problems = append(*problems, key+" must be a positive duration")
		return 0
	}
	return d
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
