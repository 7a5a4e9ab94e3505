package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultInput        = "accounts_images.csv"
	defaultOutputDir    = "."
	defaultFetchTimeout = 10 * time.Second
	maxWorkers          = 64
)

type Config struct {
	Salesforce    SalesforceConfig
	Storage       StorageConfig
	Run           RunConfig
	Logging       LoggingConfig
	Notify        NotifyConfig
	Observability ObservabilityConfig
}

type SalesforceConfig struct {
	Username        string
	Password        string
	SecurityToken   string
	Domain          string
	APIVersion      string
	Object          string
	IdentifierField string
	QueryLimit      int
}

type StorageConfig struct {
	AccessKey      string
	SecretKey      string
	Region         string
	Bucket         string
	Endpoint       string
	ForcePathStyle bool
}

type RunConfig struct {
	InputPath    string
	OutputDir    string
	FetchTimeout time.Duration
	Workers      int
	AuditDBPath  string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type NotifyConfig struct {
	Endpoint string
	Token    string
	Secret   string
}

func (n NotifyConfig) Enabled() bool {
	return n.Endpoint != ""
}

type ObservabilityConfig struct {
	Enabled           bool
	OTLPEndpoint      string
	OTLPTraceHeaders  map[string]string
	OTLPMetricHeaders map[string]string
	ServiceName       string
	ServiceVer        string
	SamplingRatio     float64
	MetricsConsole    bool
	MetricInterval    time.Duration
}

// flagKeys maps CLI flags to the environment keys they override.
var flagKeys = map[string]string{
	"input":         "photomigrate_input",
	"output-dir":    "photomigrate_output_dir",
	"fetch-timeout": "photomigrate_fetch_timeout",
	"workers":       "photomigrate_workers",
	"audit-db":      "photomigrate_audit_db",
}

// RegisterFlags declares the run flags on fs. Unset flags fall through to the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("input", defaultInput, "input CSV with Child External ID and Child Photo URL columns")
	fs.String("output-dir", defaultOutputDir, "directory for the output ledgers")
	fs.Duration("fetch-timeout", defaultFetchTimeout, "per-image download timeout")
	fs.Int("workers", 1, "rows processed concurrently (1 keeps the run sequential)")
	fs.String("audit-db", "", "SQLite audit database path (empty disables)")
}

// Load reads configuration from the environment, overridden by any flags set on flags.
// flags may be nil.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("sf_domain", "login")
	v.SetDefault("sf_api_version", "59.0")
	v.SetDefault("sf_object", "Account")
	v.SetDefault("sf_identifier_field", "Identifier__c")
	v.SetDefault("sf_query_limit", 20000)
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("aws_s3_endpoint", "")
	v.SetDefault("aws_s3_force_path_style", false)
	v.SetDefault("photomigrate_input", defaultInput)
	v.SetDefault("photomigrate_output_dir", defaultOutputDir)
	v.SetDefault("photomigrate_fetch_timeout", defaultFetchTimeout)
	v.SetDefault("photomigrate_workers", 1)
	v.SetDefault("photomigrate_audit_db", "")
	v.SetDefault("photomigrate_log_level", "info")
	v.SetDefault("photomigrate_log_format", "text")
	v.SetDefault("photomigrate_notify_endpoint", "")
	v.SetDefault("photomigrate_otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("otel_exporter_otlp_traces_headers", "")
	v.SetDefault("otel_exporter_otlp_metrics_headers", "")
	v.SetDefault("otel_service_name", "photomigrate")
	v.SetDefault("photomigrate_version", "dev")
	v.SetDefault("photomigrate_otel_sampling_ratio", 1.0)
	v.SetDefault("photomigrate_otel_metrics_console", false)
	v.SetDefault("photomigrate_otel_metric_interval", 5*time.Second)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	workers := v.GetInt("photomigrate_workers")
	if workers < 1 {
		workers = 1
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	fetchTimeout := v.GetDuration("photomigrate_fetch_timeout")
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	queryLimit := v.GetInt("sf_query_limit")
	if queryLimit < 1 {
		queryLimit = 1
	}

	samplingRatio := v.GetFloat64("photomigrate_otel_sampling_ratio")
	if samplingRatio < 0 {
		samplingRatio = 0
	}
	if samplingRatio > 1 {
		samplingRatio = 1
	}

	metricInterval := v.GetDuration("photomigrate_otel_metric_interval")
	if metricInterval <= 0 {
		metricInterval = 5 * time.Second
	}

	domain := strings.TrimSpace(v.GetString("sf_domain"))
	if domain == "" {
		domain = "login"
	}

	otlpEndpoint := strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint"))
	otlpCommonHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_headers"))
	metricsConsole := v.GetBool("photomigrate_otel_metrics_console")

	cfg := Config{
		Salesforce: SalesforceConfig{
			Username:        strings.TrimSpace(v.GetString("sf_username")),
			Password:        v.GetString("sf_password"),
			SecurityToken:   strings.TrimSpace(v.GetString("sf_security_token")),
			Domain:          domain,
			APIVersion:      strings.TrimSpace(v.GetString("sf_api_version")),
			Object:          strings.TrimSpace(v.GetString("sf_object")),
			IdentifierField: strings.TrimSpace(v.GetString("sf_identifier_field")),
			QueryLimit:      queryLimit,
		},
		Storage: StorageConfig{
			AccessKey:      strings.TrimSpace(v.GetString("aws_access_key")),
			SecretKey:      strings.TrimSpace(v.GetString("aws_secret_key")),
			Region:         strings.TrimSpace(v.GetString("aws_region")),
			Bucket:         strings.TrimSpace(v.GetString("aws_bucket")),
			Endpoint:       strings.TrimSpace(v.GetString("aws_s3_endpoint")),
			ForcePathStyle: v.GetBool("aws_s3_force_path_style"),
		},
		Run: RunConfig{
			InputPath:    strings.TrimSpace(v.GetString("photomigrate_input")),
			OutputDir:    strings.TrimSpace(v.GetString("photomigrate_output_dir")),
			FetchTimeout: fetchTimeout,
			Workers:      workers,
			AuditDBPath:  strings.TrimSpace(v.GetString("photomigrate_audit_db")),
		},
		Logging: LoggingConfig{
			Level:  strings.TrimSpace(v.GetString("photomigrate_log_level")),
			Format: strings.ToLower(strings.TrimSpace(v.GetString("photomigrate_log_format"))),
		},
		Notify: NotifyConfig{
			Endpoint: strings.TrimSpace(v.GetString("photomigrate_notify_endpoint")),
			Token:    strings.TrimSpace(v.GetString("photomigrate_notify_token")),
			Secret:   strings.TrimSpace(v.GetString("photomigrate_notify_secret")),
		},
		Observability: ObservabilityConfig{
			Enabled:           v.GetBool("photomigrate_otel_enabled") || otlpEndpoint != "" || metricsConsole,
			OTLPEndpoint:      otlpEndpoint,
			OTLPTraceHeaders:  mergeHeaderMaps(otlpCommonHeaders, parseOTLPHeaders(v.GetString("otel_exporter_otlp_traces_headers"))),
			OTLPMetricHeaders: mergeHeaderMaps(otlpCommonHeaders, parseOTLPHeaders(v.GetString("otel_exporter_otlp_metrics_headers"))),
			ServiceName:       strings.TrimSpace(v.GetString("otel_service_name")),
			ServiceVer:        strings.TrimSpace(v.GetString("photomigrate_version")),
			SamplingRatio:     samplingRatio,
			MetricsConsole:    metricsConsole,
			MetricInterval:    metricInterval,
		},
	}
	if cfg.Run.InputPath == "" {
		cfg.Run.InputPath = defaultInput
	}
	if cfg.Run.OutputDir == "" {
		cfg.Run.OutputDir = defaultOutputDir
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "photomigrate"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.Salesforce.Username == "" {
		missing = append(missing, "SF_USERNAME")
	}
	if c.Salesforce.Password == "" {
		missing = append(missing, "SF_PASSWORD")
	}
	if c.Storage.Bucket == "" {
		missing = append(missing, "AWS_BUCKET")
	}
	if c.Notify.Enabled() {
		if c.Notify.Token == "" {
			missing = append(missing, "PHOTOMIGRATE_NOTIFY_TOKEN")
		}
		if c.Notify.Secret == "" {
			missing = append(missing, "PHOTOMIGRATE_NOTIFY_SECRET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
		return fmt.Errorf("AWS_ACCESS_KEY and AWS_SECRET_KEY must be set together")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid PHOTOMIGRATE_LOG_FORMAT: %q", c.Logging.Format)
	}
	return nil
}

func parseOTLPHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
