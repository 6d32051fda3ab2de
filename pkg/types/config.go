package types

import "time"

// FieldType is the coercion target for an extracted field.
type FieldType string

const (
	FieldTypeString  FieldType = "STRING"
	FieldTypeNumber  FieldType = "NUMBER"
	FieldTypeDate    FieldType = "DATE"
	FieldTypeBoolean FieldType = "BOOLEAN"
)

// SourceField identifies which raw attribute a FieldConfiguration reads from.
type SourceField string

const (
	SourceFieldMessage SourceField = "message"
	SourceFieldLevel   SourceField = "level"
	SourceFieldSource  SourceField = "source"
	SourceFieldRaw     SourceField = "raw"
)

// LogDirectoryConfig describes one directory the scanner watches.
type LogDirectoryConfig struct {
	ID                  string `yaml:"id" json:"id"`
	DirectoryPath       string `yaml:"directory_path" json:"directoryPath"`
	FilePattern         string `yaml:"file_pattern" json:"filePattern"`
	ScanIntervalSeconds int    `yaml:"scan_interval_seconds" json:"scanIntervalSeconds"`
	Enabled             bool   `yaml:"enabled" json:"enabled"`
}

func (c LogDirectoryConfig) GetID() string { return c.ID }

// KafkaSourceConfig is a supplemental C5 ingestion source: a Kafka topic
// tailed the same way a file is tailed (SPEC_FULL.md "SUPPLEMENTED FEATURES").
type KafkaSourceConfig struct {
	ID               string   `yaml:"id" json:"id"`
	Brokers          []string `yaml:"brokers" json:"brokers"`
	Topic            string   `yaml:"topic" json:"topic"`
	ConsumerGroup    string   `yaml:"consumer_group" json:"consumerGroup"`
	SASLEnabled      bool     `yaml:"sasl_enabled" json:"saslEnabled"`
	SASLUser         string   `yaml:"sasl_user" json:"saslUser"`
	SASLPassword     string   `yaml:"sasl_password" json:"-"`
	SourceNameField  string   `yaml:"source_name_field" json:"sourceNameField"`
	Enabled          bool     `yaml:"enabled" json:"enabled"`
}

// ContainerSourceConfig is a supplemental C5 ingestion source following
// container stdout/stderr the way the teacher's container monitor does.
type ContainerSourceConfig struct {
	ID            string   `yaml:"id" json:"id"`
	SocketPath    string   `yaml:"socket_path" json:"socketPath"`
	IncludeNames  []string `yaml:"include_names" json:"includeNames"`
	ExcludeNames  []string `yaml:"exclude_names" json:"excludeNames"`
	IncludeStdout bool     `yaml:"include_stdout" json:"includeStdout"`
	IncludeStderr bool     `yaml:"include_stderr" json:"includeStderr"`
	Enabled       bool     `yaml:"enabled" json:"enabled"`
}

// FieldConfiguration describes one field extraction rule.
type FieldConfiguration struct {
	ID                string      `yaml:"id" json:"id"`
	Name              string      `yaml:"name" json:"name"`
	SourceField       SourceField `yaml:"source_field" json:"sourceField"`
	ExtractionPattern string      `yaml:"extraction_pattern" json:"extractionPattern"`
	FieldType         FieldType   `yaml:"field_type" json:"fieldType"`
	Indexed           bool        `yaml:"indexed" json:"indexed"`
	Stored            bool        `yaml:"stored" json:"stored"`
	Tokenized         bool        `yaml:"tokenized" json:"tokenized"`
	Enabled           bool        `yaml:"enabled" json:"enabled"`
}

func (c FieldConfiguration) GetID() string { return c.ID }

// RedactionGroup is one named set of masking patterns.
type RedactionGroup struct {
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// RedactionConfig is the grouped map keyed by a single field name or a
// JSON-encoded array of field names.
type RedactionConfig map[string]RedactionGroup

// RetentionPolicy describes an age-based deletion rule.
type RetentionPolicy struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	MaxAgeDays     int      `yaml:"max_age_days" json:"maxAgeDays"`
	ApplyToSources []string `yaml:"apply_to_sources" json:"applyToSources"`
	Enabled        bool     `yaml:"enabled" json:"enabled"`
}

func (p RetentionPolicy) GetID() string { return p.ID }

// ShardingType selects how the shard router distributes records.
type ShardingType string

const (
	ShardingTimeBased   ShardingType = "TIME_BASED"
	ShardingSourceBased ShardingType = "SOURCE_BASED"
	ShardingBalanced    ShardingType = "BALANCED"
)

// ShardConfiguration controls the Shard Router.
type ShardConfiguration struct {
	ID                  string       `yaml:"id" json:"id"`
	ShardingType        ShardingType `yaml:"sharding_type" json:"shardingType"`
	NumberOfShards      int          `yaml:"number_of_shards" json:"numberOfShards"`
	ReplicationEnabled  bool         `yaml:"replication_enabled" json:"replicationEnabled"`
	ReplicationFactor   int          `yaml:"replication_factor" json:"replicationFactor"`
	ShardingEnabled     bool         `yaml:"sharding_enabled" json:"shardingEnabled"`
	TimeShardDuration   time.Duration `yaml:"time_shard_duration" json:"timeShardDuration"`
}
