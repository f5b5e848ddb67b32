package config

import "math"

// EmbeddedConfig holds the raw bytes of the application YAML compiled into the binary.
type EmbeddedConfig []byte

// ItemRetryConfig controls how often a failed chunk write is retried.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // MaxAttempts includes the first attempt.
	InitialInterval     int      `yaml:"initial_interval"`     // InitialInterval is the backoff in milliseconds.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // RetryableExceptions are registered error type names.
}

// ItemSkipConfig controls which per-account failures are skipped instead of failing the partition.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // SkipLimit is the maximum number of skips per step execution.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // SkippableExceptions are registered error type names.
}

// BusinessStepConfig names one business step and its position in the pipeline.
type BusinessStepConfig struct {
	Name  string `yaml:"name"`
	Order int64  `yaml:"order"`
}

// Job repository kinds accepted by batch.job_repository.
const (
	JobRepositoryInMemory = "inmemory"
	JobRepositorySQL      = "sql"
)

// BatchConfig holds the COB job settings.
type BatchConfig struct {
	JobName        string          `yaml:"job_name"`
	PartitionSize  int             `yaml:"partition_size"`   // Accounts per id-range partition.
	GridSize       int             `yaml:"grid_size"`        // Maximum partitions executed at once. 0 runs all.
	ChunkSize      int             `yaml:"chunk_size"`       // Accounts per commit.
	ReaderThreads  int             `yaml:"reader_threads"`   // Goroutines sharing one partition reader.
	DatasourceRef  string          `yaml:"datasource_ref"`   // Key into the database map.
	MigrateOnStart bool            `yaml:"migrate_on_start"` // Run schema migrations as the job's first step.
	JobRepository  string          `yaml:"job_repository"`   // "inmemory" (default) or "sql".
	ItemRetry      ItemRetryConfig `yaml:"item_retry"`
	ItemSkip       ItemSkipConfig  `yaml:"item_skip"`
}

// LoggingConfig selects the log level and output encoding.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"` // "console" or "json"
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// MetricsConfig enables the Prometheus recorder and its scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// TracingConfig selects the OpenTelemetry span exporter.
type TracingConfig struct {
	Exporter    string `yaml:"exporter"` // none, otlp-grpc, otlp-http
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// OTelMetricsConfig selects an OTLP metric exporter. When set it replaces Prometheus.
type OTelMetricsConfig struct {
	Exporter        string `yaml:"exporter"` // none, otlp-grpc, otlp-http
	Endpoint        string `yaml:"endpoint"`
	Insecure        bool   `yaml:"insecure"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// EventsConfig configures the domain-event side channel used by business steps.
type EventsConfig struct {
	Type     string `yaml:"type"` // none, redis
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// ReportConfig configures the failure report exported after each run.
type ReportConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Storage         string `yaml:"storage"` // local, gcs
	Bucket          string `yaml:"bucket"`  // Bucket name for gcs, root directory for local.
	BaseDir         string `yaml:"base_dir"`
	Compression     string `yaml:"compression"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
}

// InfrastructureConfig groups observability and side-channel settings.
type InfrastructureConfig struct {
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
	OTelMetrics OTelMetricsConfig `yaml:"otel_metrics"`
	Events      EventsConfig      `yaml:"events"`
	Report      ReportConfig      `yaml:"report"`
}

// LoanCOBConfig is the root of the "loancob" YAML tree.
type LoanCOBConfig struct {
	Batch          BatchConfig                     `yaml:"batch"`
	BusinessSteps  map[string][]BusinessStepConfig `yaml:"business_steps"`
	System         SystemConfig                    `yaml:"system"`
	Infrastructure InfrastructureConfig            `yaml:"infrastructure"`
	// AdaptorConfigs maps datasource names to raw settings decoded by the database adapter.
	AdaptorConfigs map[string]interface{} `yaml:"database"`
}

// Config is the application configuration.
type Config struct {
	LoanCOB        LoanCOBConfig  `yaml:"loancob"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// DefaultJobName is the job name used when none is configured.
const DefaultJobName = "LOAN_CLOSE_OF_BUSINESS"

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		LoanCOB: LoanCOBConfig{
			Batch: BatchConfig{
				JobName:       DefaultJobName,
				PartitionSize: 10000,
				ChunkSize:     100,
				ReaderThreads: 1,
				DatasourceRef: "workload",
				JobRepository: JobRepositoryInMemory,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:         3,
					InitialInterval:     200,
					RetryableExceptions: []string{"context.DeadlineExceeded", "sql.ErrConnDone"},
				},
				ItemSkip: ItemSkipConfig{
					SkipLimit:           math.MaxInt32,
					SkippableExceptions: []string{"LoanReadError", "BusinessStepFailureError"},
				},
			},
			BusinessSteps: map[string][]BusinessStepConfig{},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Encoding: "console"},
			},
			Infrastructure: InfrastructureConfig{
				Metrics:     MetricsConfig{Address: ":9090"},
				Tracing:     TracingConfig{Exporter: "none", ServiceName: "loancob"},
				OTelMetrics: OTelMetricsConfig{Exporter: "none", IntervalSeconds: 15},
				Events:      EventsConfig{Type: "none", Channel: "loancob.events"},
				Report:      ReportConfig{Storage: "local", Bucket: "reports", BaseDir: "cob-failures", Compression: "SNAPPY"},
			},
			AdaptorConfigs: map[string]interface{}{},
		},
	}
}
