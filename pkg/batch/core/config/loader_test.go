package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/loancob/pkg/batch/core/config"
)

const baseYAML = `
loancob:
  batch:
    partition_size: 50
    chunk_size: 10
    reader_threads: 2
    item_skip:
      skippable_exceptions: [context.Canceled]
  business_steps:
    LOAN_CLOSE_OF_BUSINESS:
      - name: CHECK_DUE_INSTALLMENTS
        order: 1
  database:
    workload:
      type: sqlite
      database: ${LOANCOB_TEST_DB_FILE}
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()
	b := cfg.LoanCOB.Batch
	assert.Equal(t, config.DefaultJobName, b.JobName)
	assert.Equal(t, "workload", b.DatasourceRef)
	assert.Equal(t, config.JobRepositoryInMemory, b.JobRepository)
	assert.Equal(t, 3, b.ItemRetry.MaxAttempts)
	assert.Equal(t, "UTC", cfg.LoanCOB.System.Timezone)
	assert.Equal(t, "INFO", cfg.LoanCOB.System.Logging.Level)
}

func TestLoadConfig_YAMLOverDefaultsAndEnvOverYAML(t *testing.T) {
	t.Setenv("LOANCOB_TEST_DB_FILE", "cob.db")
	t.Setenv("LOANCOB_BATCH_CHUNK_SIZE", "25")
	t.Setenv("LOANCOB_BATCH_JOB_REPOSITORY", "sql")
	t.Setenv("LOANCOB_BATCH_ITEM_RETRY_RETRYABLE_EXCEPTIONS", "context.DeadlineExceeded, sql.ErrConnDone")
	t.Setenv("LOANCOB_DATABASE_WORKLOAD_LOG_LEVEL", "silent")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(baseYAML))
	require.NoError(t, err)

	b := cfg.LoanCOB.Batch
	assert.Equal(t, 50, b.PartitionSize)
	assert.Equal(t, 25, b.ChunkSize)
	assert.Equal(t, config.JobRepositorySQL, b.JobRepository)
	assert.Equal(t, []string{"context.DeadlineExceeded", "sql.ErrConnDone"}, b.ItemRetry.RetryableExceptions)
	assert.Equal(t, config.DefaultJobName, b.JobName)
	require.Len(t, cfg.LoanCOB.BusinessSteps[config.DefaultJobName], 1)

	workload, ok := cfg.LoanCOB.AdaptorConfigs["workload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "cob.db", workload["database"])
	assert.Equal(t, "silent", workload["log_level"])

	assert.NoError(t, config.Validate(cfg))
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig("loancob: [unterminated"))
	assert.ErrorContains(t, err, "failed to unmarshal embedded config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.BatchConfig)
		wantErr string
	}{
		{name: "defaults with registered names", mutate: func(*config.BatchConfig) {}},
		{name: "zero partition size", mutate: func(b *config.BatchConfig) { b.PartitionSize = 0 }, wantErr: "batch.partition_size"},
		{name: "zero chunk size", mutate: func(b *config.BatchConfig) { b.ChunkSize = 0 }, wantErr: "batch.chunk_size"},
		{name: "zero reader threads", mutate: func(b *config.BatchConfig) { b.ReaderThreads = 0 }, wantErr: "batch.reader_threads"},
		{name: "negative grid size", mutate: func(b *config.BatchConfig) { b.GridSize = -1 }, wantErr: "batch.grid_size"},
		{name: "unknown job repository", mutate: func(b *config.BatchConfig) { b.JobRepository = "redis" }, wantErr: "batch.job_repository"},
		{name: "empty job repository", mutate: func(b *config.BatchConfig) { b.JobRepository = "" }},
		{
			name:    "unregistered retryable exception",
			mutate:  func(b *config.BatchConfig) { b.ItemRetry.RetryableExceptions = []string{"NoSuchError"} },
			wantErr: "ItemRetry configuration references unknown exception class 'NoSuchError'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.LoanCOB.Batch.ItemSkip.SkippableExceptions = []string{"context.Canceled"}
			tt.mutate(&cfg.LoanCOB.Batch)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
