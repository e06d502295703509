package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
	TraceExporter string `yaml:"trace_exporter"` // auto, otlp, stdout, none
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Narration   NarrationConfig  `yaml:"narration"`
	Playback    PlaybackConfig   `yaml:"playback"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// NarrationConfig drives the streaming narration players.
type NarrationConfig struct {
	Enabled          bool   `yaml:"enabled"`
	APIBaseURL       string `yaml:"api_base_url"`
	APIToken         string `yaml:"api_token"`
	DefaultUserID    string `yaml:"default_user_id"`
	ChunkSize        int    `yaml:"chunk_size"`
	Language         string `yaml:"language"` // auto, bn, en
	ReplayCooldownMS int    `yaml:"replay_cooldown_ms"`
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
	IdleTimeoutMS    int    `yaml:"idle_timeout_ms"`
	NormalizerCache  int    `yaml:"normalizer_cache_size"`
}

// PlaybackConfig selects where scheduled audio is rendered.
type PlaybackConfig struct {
	Sink    string `yaml:"sink"` // mock, exec, oto, bus
	Command string `yaml:"command"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-narrator",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			OTLPEndpoint:  "",
			OTLPInsecure:  true,
			TraceExporter: "auto",
		},
		Bus: BusConfig{
			Embedded:       true,
			Host:           "127.0.0.1",
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/narrator-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Narration: NarrationConfig{
			Enabled:          true,
			APIBaseURL:       "http://localhost:8000",
			DefaultUserID:    "anonymous",
			ChunkSize:        1024,
			Language:         "auto",
			ReplayCooldownMS: 500,
			ConnectTimeoutMS: 10000,
			IdleTimeoutMS:    15 * 60 * 1000,
			NormalizerCache:  256,
		},
		Playback: PlaybackConfig{
			Sink: "mock",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_TELEMETRY_TRACE_EXPORTER")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "LOQA_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Narration.Enabled, "LOQA_NARRATION_ENABLED")
	overrideString(&cfg.Narration.APIBaseURL, "LOQA_NARRATION_API_BASE_URL")
	overrideString(&cfg.Narration.APIToken, "LOQA_NARRATION_API_TOKEN")
	overrideString(&cfg.Narration.DefaultUserID, "LOQA_NARRATION_DEFAULT_USER_ID")
	overrideInt(&cfg.Narration.ChunkSize, "LOQA_NARRATION_CHUNK_SIZE")
	overrideString(&cfg.Narration.Language, "LOQA_NARRATION_LANGUAGE")
	overrideInt(&cfg.Narration.ReplayCooldownMS, "LOQA_NARRATION_REPLAY_COOLDOWN_MS")
	overrideInt(&cfg.Narration.ConnectTimeoutMS, "LOQA_NARRATION_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Narration.IdleTimeoutMS, "LOQA_NARRATION_IDLE_TIMEOUT_MS")
	overrideInt(&cfg.Narration.NormalizerCache, "LOQA_NARRATION_NORMALIZER_CACHE_SIZE")
	overrideString(&cfg.Playback.Sink, "LOQA_PLAYBACK_SINK")
	overrideString(&cfg.Playback.Command, "LOQA_PLAYBACK_COMMAND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Telemetry.TraceExporter {
	case "", "auto", "stdout", "none":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of auto|otlp|stdout|none")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Narration.Enabled {
		if strings.TrimSpace(cfg.Narration.APIBaseURL) == "" {
			return errors.New("narration.api_base_url must not be empty when narration is enabled")
		}
		if cfg.Narration.ChunkSize <= 0 {
			return errors.New("narration.chunk_size must be positive")
		}
		switch cfg.Narration.Language {
		case "auto", "bn", "en":
		default:
			return errors.New("narration.language must be one of auto|bn|en")
		}
		if cfg.Narration.ReplayCooldownMS < 0 {
			return errors.New("narration.replay_cooldown_ms must be >= 0")
		}
		if cfg.Narration.ConnectTimeoutMS < 0 {
			return errors.New("narration.connect_timeout_ms must be >= 0")
		}
		if cfg.Narration.IdleTimeoutMS < 0 {
			return errors.New("narration.idle_timeout_ms must be >= 0")
		}
	}
	switch cfg.Playback.Sink {
	case "mock", "oto", "bus":
	case "exec":
		if strings.TrimSpace(cfg.Playback.Command) == "" {
			return errors.New("playback.command must be set when sink=exec")
		}
	default:
		return errors.New("playback.sink must be one of mock|exec|oto|bus")
	}
	return nil
}
