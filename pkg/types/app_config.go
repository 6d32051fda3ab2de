package types

import "time"

// Config is the root application configuration structure, loaded from
// YAML plus environment overrides.
type Config struct {
	App     AppConfig     `yaml:"app" json:"app"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	Scanner    ScannerConfig    `yaml:"scanner" json:"scanner"`
	Buffer     BufferConfig     `yaml:"buffer" json:"buffer"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Shard      ShardConfiguration `yaml:"shard" json:"shard"`
	Retention  RetentionSchedule `yaml:"retention" json:"retention"`
	Alarm      AlarmSchedule     `yaml:"alarm" json:"alarm"`
	Notification NotificationConfig `yaml:"notification" json:"notification"`

	// Directories holding the enumerated, hot-reloadable configuration
	// objects.
	ConfigDir string `yaml:"config_dir" json:"configDir"`
	DataDir   string `yaml:"data_dir" json:"dataDir"`
}

// AppConfig holds core process-identity settings.
type AppConfig struct {
	Name        string `yaml:"name" json:"name"`
	Environment string `yaml:"environment" json:"environment"`
	LogLevel    string `yaml:"log_level" json:"logLevel"`
	LogFormat   string `yaml:"log_format" json:"logFormat"`
}

// ServerConfig holds HTTP server bind settings.
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  string `yaml:"read_timeout" json:"readTimeout"`
	WriteTimeout string `yaml:"write_timeout" json:"writeTimeout"`
	APIPrefix    string `yaml:"api_prefix" json:"apiPrefix"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig holds OpenTelemetry tracer settings (SPEC_FULL.md supplement 3).
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Exporter    string `yaml:"exporter" json:"exporter"` // "otlphttp" | "jaeger" | "none"
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	ServiceName string `yaml:"service_name" json:"serviceName"`
}

// ScannerConfig holds C5 Log Scanner defaults.
type ScannerConfig struct {
	Directories        []LogDirectoryConfig    `yaml:"directories" json:"directories"`
	KafkaSources       []KafkaSourceConfig     `yaml:"kafka_sources" json:"kafkaSources"`
	ContainerSources   []ContainerSourceConfig `yaml:"container_sources" json:"containerSources"`
	DefaultScanInterval time.Duration          `yaml:"default_scan_interval" json:"defaultScanInterval"`
	OffsetStoreDir     string                  `yaml:"offset_store_dir" json:"offsetStoreDir"`
	RotationGrace      time.Duration           `yaml:"rotation_grace" json:"rotationGrace"`
	MaxReadFailures     int                    `yaml:"max_read_failures" json:"maxReadFailures"`
}

// BufferConfig holds C4 Log Buffer limits.
type BufferConfig struct {
	MaxRecords       int           `yaml:"max_records" json:"maxRecords"`
	FlushIntervalMS  int           `yaml:"flush_interval_ms" json:"flushIntervalMs"`
	CommitBatchSize  int           `yaml:"commit_batch_size" json:"commitBatchSize"`
	CommitIntervalMS int           `yaml:"commit_interval_ms" json:"commitIntervalMs"`
	MaxRetries       int           `yaml:"max_retries" json:"maxRetries"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay" json:"retryBaseDelay"`
}

// IndexConfig holds C3 Index Store settings.
type IndexConfig struct {
	SegmentDir    string `yaml:"segment_dir" json:"segmentDir"`
	Codec         string `yaml:"codec" json:"codec"` // "zstd" | "snappy" | "lz4" | "none"
	StoreRawLines bool   `yaml:"store_raw_lines" json:"storeRawLines"` // Open Question, exposed explicitly
	MergeEvery    int    `yaml:"merge_every_n_segments" json:"mergeEveryNSegments"`
}

// RetentionSchedule controls C8's periodic sweep cadence.
type RetentionSchedule struct {
	IntervalSeconds int `yaml:"interval_seconds" json:"intervalSeconds"`
}

// AlarmSchedule controls C9's periodic evaluation cadence.
type AlarmSchedule struct {
	IntervalSeconds int `yaml:"interval_seconds" json:"intervalSeconds"`
}

// NotificationConfig holds the outbound SMTP relay settings used by the
// EMAIL alarm notification channel.
type NotificationConfig struct {
	SMTPAddr string `yaml:"smtp_addr" json:"smtpAddr"`
	SMTPFrom string `yaml:"smtp_from" json:"smtpFrom"`
}
