package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createMinimalConfig writes a config file with every background
// source disabled, so New() builds a fully wired App without touching
// the network or spawning scanner/docker/kafka goroutines.
func createMinimalConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	configContent := fmt.Sprintf(`
app:
  name: test-logvault
  environment: test
  log_level: debug
  log_format: text

server:
  host: 127.0.0.1
  port: 0
  read_timeout: 5s
  write_timeout: 5s

metrics:
  enabled: true
  path: /metrics

tracing:
  enabled: false
  exporter: none

scanner:
  directories: []
  kafka_sources: []
  container_sources: []
  default_scan_interval: 1s
  offset_store_dir: %s/offsets
  rotation_grace: 1s
  max_read_failures: 5

buffer:
  max_records: 100
  flush_interval_ms: 50
  commit_batch_size: 10
  commit_interval_ms: 100
  max_retries: 1
  retry_base_delay: 10ms

index:
  segment_dir: %s/index
  codec: none
  store_raw_lines: true
  merge_every_n_segments: 4

shard:
  id: test
  sharding_type: TIME_BASED
  number_of_shards: 1
  time_shard_duration: 1h

retention:
  interval_seconds: 3600

alarm:
  interval_seconds: 3600

notification:
  smtp_addr: localhost:25
  smtp_from: logvault@test

config_dir: %s/config
data_dir: %s/data
`, tmpDir, tmpDir, tmpDir, tmpDir)

	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0o644))
	return configFile
}

func TestNewBuildsEveryComponent(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := createMinimalConfig(t, tmpDir)

	a, err := New(configFile)
	require.NoError(t, err)
	require.NotNil(t, a)
	defer a.Stop()

	assert.Equal(t, "test-logvault", a.config.App.Name)
	assert.NotNil(t, a.tracingManager)
	assert.NotNil(t, a.redactionEngine)
	assert.NotNil(t, a.extractor)
	assert.NotNil(t, a.router)
	assert.NotNil(t, a.buf)
	assert.NotNil(t, a.searchExecutor)
	assert.NotNil(t, a.retentionExecutor)
	assert.NotNil(t, a.alarmEvaluator)
	assert.NotNil(t, a.httpServer)
	assert.Len(t, a.shardStores, 1)
}

func TestNewRejectsUnreadableConfig(t *testing.T) {
	a, err := New("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestHealthHandlerReportsHealthy(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := createMinimalConfig(t, tmpDir)

	a, err := New(configFile)
	require.NoError(t, err)
	defer a.Stop()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	a.healthHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Contains(t, resp.Services, "index")
	assert.Contains(t, resp.Checks, "cpu")
}

func TestStartStop(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := createMinimalConfig(t, tmpDir)

	a, err := New(configFile)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, a.Stop())
}

func TestRedactionConfigRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := createMinimalConfig(t, tmpDir)

	a, err := New(configFile)
	require.NoError(t, err)
	defer a.Stop()

	body := `{}`
	req := httptest.NewRequest(http.MethodPut, "/redaction/config", strings.NewReader(body))
	rr := httptest.NewRecorder()
	a.putRedactionConfig(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/redaction/config", nil)
	getRR := httptest.NewRecorder()
	a.getRedactionConfig(getRR, getReq)
	assert.Equal(t, http.StatusOK, getRR.Code)
}
