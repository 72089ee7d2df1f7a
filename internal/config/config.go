package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/adminops/internal/domain/operation"
)

// Config represents the top-level configuration.
type Config struct {
	// Deployment selects environment specific stages, e.g. "development" or
	// "production".
	Deployment    string              `yaml:"deployment"`
	Backend       BackendConfig       `yaml:"backend"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Events        EventsConfig        `yaml:"events"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Log           LogConfig           `yaml:"log"`

	// Profiles overrides the built-in profile of a kind, keyed by kind name.
	Profiles map[string]ProfileConfig `yaml:"profiles,omitempty"`
}

// BackendConfig configures the HTTP backend collaborator.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// StatusRateLimit is the maximum number of status requests per second.
	// Zero disables client side limiting.
	StatusRateLimit float64 `yaml:"status_rate_limit,omitempty"`
	StatusBurst     int     `yaml:"status_burst,omitempty"`
}

// OrchestrationConfig holds supervisor knobs shared by every kind.
type OrchestrationConfig struct {
	ETAAlmostDone time.Duration `yaml:"eta_almost_done"`
	// StallPolls raises a stall notice after that many polls without
	// percentage change. Zero disables the notice.
	StallPolls    int           `yaml:"stall_polls"`
	HistorySize   int           `yaml:"history_size"`
	CancelTimeout time.Duration `yaml:"cancel_timeout"`
}

// EventsConfig selects the sinks operation events are published to. The
// in-process broker is always enabled.
type EventsConfig struct {
	Kafka *KafkaConfig `yaml:"kafka,omitempty"`
}

// KafkaConfig configures the Kafka event sink.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
	// OTLPEndpoint enables OTLP export when set.
	OTLPEndpoint string  `yaml:"otlp_endpoint,omitempty"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ProfileConfig overrides parts of a built-in profile. Zero values keep the
// built-in setting.
type ProfileConfig struct {
	Polling *PollingConfig `yaml:"polling,omitempty"`
	// Floors overrides the percent floor of individual stages by stage id.
	Floors map[string]int `yaml:"floors,omitempty"`
	// Stages replaces the built-in stage table entirely when set.
	Stages []StageConfig `yaml:"stages,omitempty"`

	CompletionMarkers []string `yaml:"completion_markers,omitempty"`
	ErrorMarkers      []string `yaml:"error_markers,omitempty"`
	SuccessStages     []string `yaml:"success_stages,omitempty"`
	ErrorStages       []string `yaml:"error_stages,omitempty"`
}

// PollingConfig mirrors operation.PollPolicy.
type PollingConfig struct {
	Interval             time.Duration `yaml:"interval,omitempty"`
	MaxPolls             int           `yaml:"max_polls,omitempty"`
	ErrorStreakThreshold int           `yaml:"error_streak_threshold,omitempty"`
}

// StageConfig mirrors operation.StageDefinition.
type StageConfig struct {
	ID              string            `yaml:"id"`
	Label           string            `yaml:"label"`
	Order           int               `yaml:"order"`
	Terminal        bool              `yaml:"terminal,omitempty"`
	Floor           int               `yaml:"floor,omitempty"`
	Aliases         []string          `yaml:"aliases,omitempty"`
	EnterMarkers    []string          `yaml:"enter_markers,omitempty"`
	CompleteMarkers []string          `yaml:"complete_markers,omitempty"`
	Profiles        []string          `yaml:"profiles,omitempty"`
	SkipWhen        map[string]string `yaml:"skip_when,omitempty"`
}

func (s StageConfig) definition() operation.StageDefinition {
	return operation.StageDefinition{
		ID:              s.ID,
		Label:           s.Label,
		Order:           s.Order,
		Terminal:        s.Terminal,
		Floor:           s.Floor,
		Aliases:         s.Aliases,
		EnterMarkers:    s.EnterMarkers,
		CompleteMarkers: s.CompleteMarkers,
		Profiles:        s.Profiles,
		SkipWhen:        s.SkipWhen,
	}
}

// OperationProfiles returns the effective profile of every kind: the
// built-in profile with this configuration's overrides applied.
func (c *Config) OperationProfiles() (map[operation.Kind]operation.Profile, error) {
	profiles := DefaultProfiles()
	for name, override := range c.Profiles {
		kind, err := operation.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		profiles[kind] = override.apply(profiles[kind])
	}
	return profiles, nil
}

func (o ProfileConfig) apply(p operation.Profile) operation.Profile {
	if o.Polling != nil {
		if o.Polling.Interval > 0 {
			p.Polling.Interval = o.Polling.Interval
		}
		if o.Polling.MaxPolls > 0 {
			p.Polling.MaxPolls = o.Polling.MaxPolls
		}
		if o.Polling.ErrorStreakThreshold > 0 {
			p.Polling.ErrorStreakThreshold = o.Polling.ErrorStreakThreshold
		}
	}
	if len(o.Stages) > 0 {
		p.Stages = make([]operation.StageDefinition, len(o.Stages))
		for i, st := range o.Stages {
			p.Stages[i] = st.definition()
		}
	}
	if len(o.Floors) > 0 {
		stages := make([]operation.StageDefinition, len(p.Stages))
		copy(stages, p.Stages)
		for i := range stages {
			if floor, ok := o.Floors[stages[i].ID]; ok {
				stages[i].Floor = floor
			}
		}
		p.Stages = stages
	}
	if len(o.CompletionMarkers) > 0 {
		p.CompletionMarkers = o.CompletionMarkers
	}
	if len(o.ErrorMarkers) > 0 {
		p.ErrorMarkers = o.ErrorMarkers
	}
	if len(o.SuccessStages) > 0 {
		p.SuccessStages = o.SuccessStages
	}
	if len(o.ErrorStages) > 0 {
		p.ErrorStages = o.ErrorStages
	}
	return p
}

// Validate checks the configuration, including every effective profile.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must be positive, got %s", c.Backend.Timeout))
	}
	if c.Backend.StatusRateLimit < 0 {
		errs = append(errs, fmt.Errorf("backend.status_rate_limit must not be negative"))
	}
	if k := c.Events.Kafka; k != nil && (len(k.Brokers) == 0 || k.Topic == "") {
		errs = append(errs, errors.New("events.kafka requires brokers and topic"))
	}

	profiles, err := c.OperationProfiles()
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	for _, kind := range operation.Kinds() {
		p, ok := profiles[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("no profile for %s", kind))
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
