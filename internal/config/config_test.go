package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GATHER_CONFIG", "")
	t.Setenv("EXPECTED_WORKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Workers)
	assert.Equal(t, "merge.trigger", cfg.MergeQueue)
	assert.Equal(t, 20*time.Second, cfg.PollWait)
	assert.Equal(t, 40*time.Second, cfg.MergeIdleSleep)
	assert.Equal(t, 15*time.Minute, cfg.StuckAfter)
	assert.Equal(t, "*/1 * * * *", cfg.SweepCron)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATHER_CONFIG", "")
	t.Setenv("EXPECTED_WORKERS", " sca-go , sast,, sast ")
	t.Setenv("WORKER_QUEUE_SCA_GO", "custom.sca")
	t.Setenv("BLOB_BUCKET_SAST", "sast-out")
	t.Setenv("STUCK_AFTER", "30m")
	t.Setenv("POLL_WAIT", "5")
	t.Setenv("QUEUE_DELIVERY_LIMIT", "3")
	t.Setenv("API_RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"sast", "sca-go"}, cfg.Workers)
	assert.Equal(t, 30*time.Minute, cfg.StuckAfter)
	assert.Equal(t, 5*time.Second, cfg.PollWait)
	assert.Equal(t, 3, cfg.DeliveryLimit)
	assert.InDelta(t, 2.5, cfg.APIRateLimit, 1e-9)

	set := cfg.WorkerSet()
	sca, ok := set.Lookup("sca-go")
	require.True(t, ok)
	assert.Equal(t, "custom.sca", sca.Queue)
	assert.Equal(t, "outputs", sca.Bucket)

	sast, ok := set.Lookup("sast")
	require.True(t, ok)
	assert.Equal(t, "work.sast", sast.Queue)
	assert.Equal(t, "sast-out", sast.Bucket)

	assert.Equal(t, []string{"work.sast", "custom.sca", "merge.trigger"}, cfg.Queues())
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gather.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: [b, a]
mergeQueue: merge.custom
stuckAfter: 10m
workerQueues:
  a: queue.a
`), 0o600))

	t.Setenv("GATHER_CONFIG", path)
	t.Setenv("EXPECTED_WORKERS", "")
	os.Unsetenv("EXPECTED_WORKERS")
	t.Setenv("MERGE_QUEUE", "merge.env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, cfg.Workers)
	assert.Equal(t, "merge.env", cfg.MergeQueue, "env wins over file")
	assert.Equal(t, 10*time.Minute, cfg.StuckAfter)
	assert.Equal(t, "queue.a", cfg.QueueFor("a"))
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("GATHER_CONFIG", "")
	t.Setenv("STUCK_AFTER", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "STUCK_AFTER")
}

func TestValidate_DelayRange(t *testing.T) {
	cfg := Default()
	cfg.WorkerDelayMin = time.Minute
	cfg.WorkerDelayMax = time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidate_MergeQueueCollision(t *testing.T) {
	cfg := Default()
	cfg.Workers = []string{"a"}
	cfg.WorkerQueues = map[string]string{"a": cfg.MergeQueue}
	assert.Error(t, cfg.Validate())
}
