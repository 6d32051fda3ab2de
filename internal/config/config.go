// Package config loads and validates logvault's application configuration
// from a YAML file with environment-variable overrides, following the
// load -> defaults -> env-override -> validate pipeline the teacher uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	apperrors "logvault/pkg/errors"
	"logvault/pkg/types"

	"gopkg.in/yaml.v2"
)

// Load reads configFile (if non-empty), applies defaults, applies
// environment overrides, and validates the result.
func Load(configFile string) (*types.Config, error) {
	cfg := &types.Config{}

	if configFile != "" {
		if err := loadFile(configFile, cfg); err != nil {
			return nil, apperrors.New(apperrors.CodeConfigInvalid, "config", "Load", err.Error())
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *types.Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "logvault"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "json"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.ReadTimeout == "" {
		cfg.Server.ReadTimeout = "30s"
	}
	if cfg.Server.WriteTimeout == "" {
		cfg.Server.WriteTimeout = "60s"
	}
	if cfg.Server.APIPrefix == "" {
		cfg.Server.APIPrefix = "/api"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "logvault"
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "none"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = "./config"
	}

	if cfg.Scanner.DefaultScanInterval == 0 {
		cfg.Scanner.DefaultScanInterval = 5 * time.Second
	}
	if cfg.Scanner.OffsetStoreDir == "" {
		cfg.Scanner.OffsetStoreDir = cfg.DataDir + "/offsets"
	}
	if cfg.Scanner.RotationGrace == 0 {
		cfg.Scanner.RotationGrace = 10 * time.Minute
	}
	if cfg.Scanner.MaxReadFailures == 0 {
		cfg.Scanner.MaxReadFailures = 5
	}

	if cfg.Buffer.MaxRecords == 0 {
		cfg.Buffer.MaxRecords = 10000
	}
	if cfg.Buffer.FlushIntervalMS == 0 {
		cfg.Buffer.FlushIntervalMS = 1000
	}
	if cfg.Buffer.CommitBatchSize == 0 {
		cfg.Buffer.CommitBatchSize = 500
	}
	if cfg.Buffer.CommitIntervalMS == 0 {
		cfg.Buffer.CommitIntervalMS = 2000
	}
	if cfg.Buffer.MaxRetries == 0 {
		cfg.Buffer.MaxRetries = 5
	}
	if cfg.Buffer.RetryBaseDelay == 0 {
		cfg.Buffer.RetryBaseDelay = 200 * time.Millisecond
	}

	if cfg.Index.SegmentDir == "" {
		cfg.Index.SegmentDir = cfg.DataDir + "/index"
	}
	if cfg.Index.Codec == "" {
		cfg.Index.Codec = "zstd"
	}
	if cfg.Index.MergeEvery == 0 {
		cfg.Index.MergeEvery = 8
	}
	// StoreRawLines gets no default here: it is a plain bool, so an
	// omitted key reads as false. Nothing reads the setting; the index
	// stores every record as it arrives, Raw included.

	if cfg.Shard.NumberOfShards == 0 {
		cfg.Shard.NumberOfShards = 1
	}
	if cfg.Shard.ShardingType == "" {
		cfg.Shard.ShardingType = types.ShardingTimeBased
	}
	if cfg.Shard.TimeShardDuration == 0 {
		cfg.Shard.TimeShardDuration = 24 * time.Hour
	}
	if cfg.Shard.ReplicationFactor == 0 {
		cfg.Shard.ReplicationFactor = 1
	}

	if cfg.Retention.IntervalSeconds == 0 {
		cfg.Retention.IntervalSeconds = 3600
	}
	if cfg.Alarm.IntervalSeconds == 0 {
		cfg.Alarm.IntervalSeconds = 60
	}

	if cfg.Notification.SMTPAddr == "" {
		cfg.Notification.SMTPAddr = "localhost:25"
	}
	if cfg.Notification.SMTPFrom == "" {
		cfg.Notification.SMTPFrom = "logvault@" + cfg.App.Name
	}
}

func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("LOGVAULT_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOGVAULT_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("LOGVAULT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOGVAULT_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if v := os.Getenv("LOGVAULT_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("LOGVAULT_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
}

// Validate rejects configurations that violate minimum value invariants
// (server port in range, scan interval >= 1s, buffer size, shard count
// and replication factor >= 1).
func Validate(cfg *types.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return apperrors.New(apperrors.CodeConfigInvalid, "config", "Validate", "server.port out of range")
	}
	for _, dir := range cfg.Scanner.Directories {
		if dir.ScanIntervalSeconds < 1 {
			return apperrors.New(apperrors.CodeConfigInvalid, "config", "Validate",
				fmt.Sprintf("directory %s: scan_interval_seconds must be >= 1", dir.ID))
		}
	}
	if cfg.Buffer.MaxRecords < 1 {
		return apperrors.New(apperrors.CodeConfigInvalid, "config", "Validate", "buffer.max_records must be >= 1")
	}
	if cfg.Shard.NumberOfShards < 1 {
		return apperrors.New(apperrors.CodeConfigInvalid, "config", "Validate", "shard.number_of_shards must be >= 1")
	}
	if cfg.Shard.ReplicationEnabled && cfg.Shard.ReplicationFactor < 1 {
		return apperrors.New(apperrors.CodeConfigInvalid, "config", "Validate", "shard.replication_factor must be >= 1")
	}
	return nil
}
