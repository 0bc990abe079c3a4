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
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Transcript  TranscriptConfig  `yaml:"transcript"`
	Correction  CorrectionConfig  `yaml:"correction"`
	Export      ExportConfig      `yaml:"export"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// EventStoreConfig controls the session timeline. The timeline lives only as
// long as the process: "memory" keeps it in an in-memory SQLite database,
// "ephemeral" disables recording entirely.
type EventStoreConfig struct {
	RetentionMode string `yaml:"retention_mode"`
	MaxEvents     int    `yaml:"max_events"`
}

type RecognitionConfig struct {
	Engine          string `yaml:"engine"` // bridge, bus, scripted, none
	Language        string `yaml:"language"`
	Continuous      bool   `yaml:"continuous"`
	InterimResults  bool   `yaml:"interim_results"`
	MaxAlternatives int    `yaml:"max_alternatives"`
}

type TranscriptConfig struct {
	Strategy          string `yaml:"strategy"` // incremental, rebuild
	RestartDelayMS    int    `yaml:"restart_delay_ms"`
	DuplicateWindowMS int    `yaml:"duplicate_window_ms"`
	DedupCapacity     int    `yaml:"dedup_capacity"`
}

type CorrectionConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"` // gemini, ollama, exec, mock
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	DebounceMS  int     `yaml:"debounce_ms"`
	TimeoutMS   int     `yaml:"timeout_ms"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type ExportConfig struct {
	Prefix    string `yaml:"prefix"`
	Directory string `yaml:"directory"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-scribe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			RetentionMode: "memory",
			MaxEvents:     1000,
		},
		Recognition: RecognitionConfig{
			Engine:          "bridge",
			Language:        "ur-PK",
			Continuous:      true,
			InterimResults:  true,
			MaxAlternatives: 1,
		},
		Transcript: TranscriptConfig{
			Strategy:          "incremental",
			RestartDelayMS:    50,
			DuplicateWindowMS: 50,
			DedupCapacity:     50,
		},
		Correction: CorrectionConfig{
			Enabled:     false,
			Mode:        "gemini",
			Model:       "gemini-2.5-flash",
			Endpoint:    "http://localhost:11434",
			DebounceMS:  1500,
			TimeoutMS:   30000,
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Export: ExportConfig{
			Prefix:    "urdu-transcript",
			Directory: ".",
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
	overrideString(&cfg.RuntimeName, "SCRIBE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SCRIBE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SCRIBE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SCRIBE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "SCRIBE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SCRIBE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SCRIBE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.RetentionMode, "SCRIBE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.MaxEvents, "SCRIBE_EVENT_STORE_MAX_EVENTS")
	overrideString(&cfg.Recognition.Engine, "SCRIBE_RECOGNITION_ENGINE")
	overrideString(&cfg.Recognition.Language, "SCRIBE_RECOGNITION_LANGUAGE")
	overrideBool(&cfg.Recognition.Continuous, "SCRIBE_RECOGNITION_CONTINUOUS")
	overrideBool(&cfg.Recognition.InterimResults, "SCRIBE_RECOGNITION_INTERIM_RESULTS")
	overrideInt(&cfg.Recognition.MaxAlternatives, "SCRIBE_RECOGNITION_MAX_ALTERNATIVES")
	overrideString(&cfg.Transcript.Strategy, "SCRIBE_TRANSCRIPT_STRATEGY")
	overrideInt(&cfg.Transcript.RestartDelayMS, "SCRIBE_TRANSCRIPT_RESTART_DELAY_MS")
	overrideInt(&cfg.Transcript.DuplicateWindowMS, "SCRIBE_TRANSCRIPT_DUPLICATE_WINDOW_MS")
	overrideInt(&cfg.Transcript.DedupCapacity, "SCRIBE_TRANSCRIPT_DEDUP_CAPACITY")
	overrideBool(&cfg.Correction.Enabled, "SCRIBE_CORRECTION_ENABLED")
	overrideString(&cfg.Correction.Mode, "SCRIBE_CORRECTION_MODE")
	overrideString(&cfg.Correction.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.Correction.APIKey, "SCRIBE_CORRECTION_API_KEY")
	overrideString(&cfg.Correction.Model, "SCRIBE_CORRECTION_MODEL")
	overrideString(&cfg.Correction.Endpoint, "SCRIBE_CORRECTION_ENDPOINT")
	overrideString(&cfg.Correction.Command, "SCRIBE_CORRECTION_COMMAND")
	overrideInt(&cfg.Correction.DebounceMS, "SCRIBE_CORRECTION_DEBOUNCE_MS")
	overrideInt(&cfg.Correction.TimeoutMS, "SCRIBE_CORRECTION_TIMEOUT_MS")
	overrideInt(&cfg.Correction.MaxTokens, "SCRIBE_CORRECTION_MAX_TOKENS")
	overrideFloat(&cfg.Correction.Temperature, "SCRIBE_CORRECTION_TEMPERATURE")
	overrideString(&cfg.Export.Prefix, "SCRIBE_EXPORT_PREFIX")
	overrideString(&cfg.Export.Directory, "SCRIBE_EXPORT_DIRECTORY")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
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
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "memory", "ephemeral":
	default:
		return errors.New("event_store.retention_mode must be one of memory|ephemeral")
	}
	if cfg.EventStore.MaxEvents < 0 {
		return errors.New("event_store.max_events must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Recognition.Engine {
	case "bridge", "scripted", "none":
	case "bus":
		if !cfg.Bus.Enabled {
			return errors.New("recognition.engine=bus requires bus.enabled")
		}
	default:
		return errors.New("recognition.engine must be one of bridge|bus|scripted|none")
	}
	if cfg.Recognition.Language == "" {
		return errors.New("recognition.language must not be empty")
	}
	if cfg.Recognition.MaxAlternatives <= 0 {
		return errors.New("recognition.max_alternatives must be >= 1")
	}
	switch strings.ToLower(cfg.Transcript.Strategy) {
	case "", "incremental", "rebuild":
	default:
		return errors.New("transcript.strategy must be one of incremental|rebuild")
	}
	if cfg.Transcript.RestartDelayMS < 0 {
		return errors.New("transcript.restart_delay_ms must be >= 0")
	}
	if cfg.Transcript.DuplicateWindowMS < 0 {
		return errors.New("transcript.duplicate_window_ms must be >= 0")
	}
	if cfg.Transcript.DedupCapacity < 0 {
		return errors.New("transcript.dedup_capacity must be >= 0")
	}
	switch cfg.Correction.Mode {
	case "gemini", "ollama", "exec", "mock":
	default:
		return errors.New("correction.mode must be one of gemini|ollama|exec|mock")
	}
	if cfg.Correction.Mode == "ollama" && cfg.Correction.Endpoint == "" {
		return errors.New("correction.endpoint must be set when mode=ollama")
	}
	if cfg.Correction.Mode == "exec" && cfg.Correction.Command == "" {
		return errors.New("correction.command must be set when mode=exec")
	}
	if cfg.Correction.DebounceMS < 0 {
		return errors.New("correction.debounce_ms must be >= 0")
	}
	if cfg.Correction.TimeoutMS <= 0 {
		return errors.New("correction.timeout_ms must be positive")
	}
	if cfg.Export.Prefix == "" {
		return errors.New("export.prefix must not be empty")
	}
	return nil
}
