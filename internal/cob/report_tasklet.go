package cob

import (
	"context"
	"time"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	"github.com/tigerroll/loancob/pkg/batch/adapter/storage"
	storageconfig "github.com/tigerroll/loancob/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/loancob/pkg/batch/component/step/writer"
	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// ReportStorageConfig maps the report settings onto a storage connection. For local storage
// the bucket setting is the root directory.
func ReportStorageConfig(cfg config.ReportConfig) storageconfig.StorageConfig {
	if cfg.Storage == "gcs" {
		return storageconfig.StorageConfig{
			Type:            "gcs",
			BucketName:      cfg.Bucket,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		}
	}
	return storageconfig.StorageConfig{Type: "local", BaseDir: cfg.Bucket}
}

// FailureReportTasklet exports the accounts left locked with an error for the run's business
// date as Parquet, one file per date under the configured base directory.
type FailureReportTasklet struct {
	locks   repository.AccountLockRepository
	conn    storage.StorageConnection
	cfg     config.ReportConfig
	written []string
}

func NewFailureReportTasklet(locks repository.AccountLockRepository, conn storage.StorageConnection, cfg config.ReportConfig) *FailureReportTasklet {
	return &FailureReportTasklet{locks: locks, conn: conn, cfg: cfg}
}

func (t *FailureReportTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	const op = "FailureReportTasklet"
	var businessDate *time.Time
	if stepExecution.JobExecution != nil {
		if s, ok := stepExecution.JobExecution.Parameters.GetString(ParamBusinessDate); ok {
			if d, err := time.Parse(dateLayout, s); err == nil {
				businessDate = &d
			}
		}
	}

	failed, err := t.locks.FindWithErrors(ctx, businessDate)
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if len(failed) == 0 {
		logger.Infof("%s: no failed accounts to report.", op)
		return model.ExitStatusNoOp, nil
	}

	w, err := writer.NewParquetWriter[entity.FailureReportRow](op, writer.ParquetWriterConfig{
		OutputBaseDir:   t.cfg.BaseDir,
		CompressionType: t.cfg.Compression,
	}, t.conn, new(entity.FailureReportRow), func(row entity.FailureReportRow) (string, error) {
		return time.Unix(int64(row.BusinessDate)*86400, 0).UTC().Format(dateLayout), nil
	})
	if err != nil {
		return model.ExitStatusFailed, err
	}
	if err := w.Open(ctx, stepExecution.ExecutionContext); err != nil {
		return model.ExitStatusFailed, err
	}
	rows := make([]entity.FailureReportRow, len(failed))
	for i, l := range failed {
		rows[i] = toReportRow(l)
	}
	if err := w.Write(ctx, rows); err != nil {
		return model.ExitStatusFailed, err
	}
	if err := w.Close(ctx); err != nil {
		return model.ExitStatusFailed, exception.NewBatchError(op, "failed to upload failure report", err, false, false)
	}
	t.written = w.Uploaded()
	logger.Warnf("%s: %d accounts remain locked with errors, reported to %v.", op, len(failed), t.written)
	return model.ExitStatusCompleted, nil
}

// Written returns the object names uploaded by the last execution.
func (t *FailureReportTasklet) Written() []string {
	return append([]string(nil), t.written...)
}

func toReportRow(l entity.AccountLock) entity.FailureReportRow {
	row := entity.FailureReportRow{
		AccountID:    l.AccountID,
		Owner:        string(l.Owner),
		LockPlacedOn: l.LockPlacedOn.UnixMilli(),
		Error:        l.Error,
		ErrorDetails: string(l.ErrorDetails),
	}
	if l.LockPlacedOnCOBBusinessDate != nil {
		row.BusinessDate = int32(entity.DateOnly(*l.LockPlacedOnCOBBusinessDate).Unix() / 86400)
	}
	return row
}

var _ port.Tasklet = (*FailureReportTasklet)(nil)
