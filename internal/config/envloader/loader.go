// Package envloader layers ADMINOPS_* environment variables over another
// configuration loader.
package envloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ahrav/adminops/internal/config"
)

// Prefix is prepended to every recognised key, e.g. ADMINOPS_BACKEND_BASE_URL.
const Prefix = "ADMINOPS"

const (
	keyDeployment      = "deployment"
	keyBaseURL         = "backend.base_url"
	keyTimeout         = "backend.timeout"
	keyStatusRateLimit = "backend.status_rate_limit"
	keyStatusBurst     = "backend.status_burst"
	keyETAAlmostDone   = "orchestration.eta_almost_done"
	keyStallPolls      = "orchestration.stall_polls"
	keyHistorySize     = "orchestration.history_size"
	keyCancelTimeout   = "orchestration.cancel_timeout"
	keyKafkaBrokers    = "events.kafka.brokers"
	keyKafkaTopic      = "events.kafka.topic"
	keyKafkaClientID   = "events.kafka.client_id"
	keyServiceName     = "telemetry.service_name"
	keyOTLPEndpoint    = "telemetry.otlp_endpoint"
	keySampleRatio     = "telemetry.sample_ratio"
	keyLogLevel        = "log.level"
)

var keys = []string{
	keyDeployment,
	keyBaseURL, keyTimeout, keyStatusRateLimit, keyStatusBurst,
	keyETAAlmostDone, keyStallPolls, keyHistorySize, keyCancelTimeout,
	keyKafkaBrokers, keyKafkaTopic, keyKafkaClientID,
	keyServiceName, keyOTLPEndpoint, keySampleRatio,
	keyLogLevel,
}

// EnvLoader applies environment overrides to the configuration produced by
// a base loader.
type EnvLoader struct {
	base config.Loader
	v    *viper.Viper
}

// NewEnvLoader creates an EnvLoader over base. A nil base starts from
// config.Default.
func NewEnvLoader(base config.Loader) *EnvLoader {
	if base == nil {
		base = config.DefaultLoader{}
	}

	v := viper.New()
	v.SetEnvPrefix(Prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &EnvLoader{base: base, v: v}
}

// Load implements config.Loader.
func (l *EnvLoader) Load(ctx context.Context) (*config.Config, error) {
	cfg, err := l.base.Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if err := l.v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := l.apply(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return cfg, nil
}

func (l *EnvLoader) apply(cfg *config.Config) error {
	v := l.v
	set := func(key string) bool { return v.IsSet(key) && strings.TrimSpace(v.GetString(key)) != "" }

	if set(keyDeployment) {
		cfg.Deployment = v.GetString(keyDeployment)
	}

	if set(keyBaseURL) {
		cfg.Backend.BaseURL = v.GetString(keyBaseURL)
	}
	if set(keyTimeout) {
		d, err := parseDuration(v, keyTimeout)
		if err != nil {
			return err
		}
		cfg.Backend.Timeout = d
	}
	if set(keyStatusRateLimit) {
		cfg.Backend.StatusRateLimit = v.GetFloat64(keyStatusRateLimit)
	}
	if set(keyStatusBurst) {
		cfg.Backend.StatusBurst = v.GetInt(keyStatusBurst)
	}

	if set(keyETAAlmostDone) {
		d, err := parseDuration(v, keyETAAlmostDone)
		if err != nil {
			return err
		}
		cfg.Orchestration.ETAAlmostDone = d
	}
	if set(keyStallPolls) {
		cfg.Orchestration.StallPolls = v.GetInt(keyStallPolls)
	}
	if set(keyHistorySize) {
		cfg.Orchestration.HistorySize = v.GetInt(keyHistorySize)
	}
	if set(keyCancelTimeout) {
		d, err := parseDuration(v, keyCancelTimeout)
		if err != nil {
			return err
		}
		cfg.Orchestration.CancelTimeout = d
	}

	if set(keyKafkaBrokers) || set(keyKafkaTopic) {
		if cfg.Events.Kafka == nil {
			cfg.Events.Kafka = &config.KafkaConfig{ClientID: "adminops"}
		}
		if set(keyKafkaBrokers) {
			cfg.Events.Kafka.Brokers = splitList(v.GetString(keyKafkaBrokers))
		}
		if set(keyKafkaTopic) {
			cfg.Events.Kafka.Topic = v.GetString(keyKafkaTopic)
		}
	}
	if set(keyKafkaClientID) && cfg.Events.Kafka != nil {
		cfg.Events.Kafka.ClientID = v.GetString(keyKafkaClientID)
	}

	if set(keyServiceName) {
		cfg.Telemetry.ServiceName = v.GetString(keyServiceName)
	}
	if set(keyOTLPEndpoint) {
		cfg.Telemetry.OTLPEndpoint = v.GetString(keyOTLPEndpoint)
	}
	if set(keySampleRatio) {
		cfg.Telemetry.SampleRatio = v.GetFloat64(keySampleRatio)
	}

	if set(keyLogLevel) {
		cfg.Log.Level = v.GetString(keyLogLevel)
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
