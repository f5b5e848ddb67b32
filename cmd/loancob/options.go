package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tigerroll/loancob/internal/app"
	"github.com/tigerroll/loancob/internal/domain/entity"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

const (
	flagEnvFile    = "env-file"
	flagDBAdapters = "db-adapters"
	flagJobType    = "job-type"
	flagDate       = "date"
	flagCatchUp    = "catch-up"
	flagOwner      = "owner"
	flagMessage    = "message"
)

const dateLayout = "2006-01-02"

// newViper binds the command's flags over LOANCOB_* environment variables. A flag set on the
// command line wins over the environment, which wins over the flag default.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("LOANCOB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return nil, err
	}
	if err := v.BindEnv(flagEnvFile, "ENV_FILE_PATH"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(flagDBAdapters, "DB_ADAPTORS"); err != nil {
		return nil, err
	}
	return v, nil
}

// appOptions builds the application options from the bound flags.
func appOptions(v *viper.Viper) app.Options {
	return app.Options{
		EnvFilePath:    v.GetString(flagEnvFile),
		EmbeddedConfig: embeddedConfig,
		DBAdapters:     splitList(v.GetStringSlice(flagDBAdapters)),
	}
}

// splitList flattens comma separated entries; DB_ADAPTORS arrives as one string.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s', expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}

func parseAccountIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range splitList(args) {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid account id '%s'", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseLockOwner(s string) (entity.LockOwner, error) {
	switch owner := entity.LockOwner(strings.ToUpper(s)); owner {
	case entity.LockOwnerBatchPartitioning, entity.LockOwnerBatchChunkProcessing, entity.LockOwnerInlineProcessing:
		return owner, nil
	}
	return "", fmt.Errorf("unknown lock owner '%s'", s)
}

func parseBusinessDateType(s string) (entity.BusinessDateType, error) {
	switch strings.ToUpper(s) {
	case "BUSINESS", string(entity.BusinessDateTypeBusiness):
		return entity.BusinessDateTypeBusiness, nil
	case "COB", string(entity.BusinessDateTypeCOB):
		return entity.BusinessDateTypeCOB, nil
	}
	return "", fmt.Errorf("unknown business date type '%s'", s)
}

// executionError turns an unsuccessful execution into the command's error.
func executionError(execution *model.JobExecution) error {
	if status := execution.CurrentStatus(); status != model.BatchStatusCompleted {
		return fmt.Errorf("job execution %s ended with status %s: %s", execution.ID, status,
			strings.Join(execution.FailureMessages(), "; "))
	}
	return nil
}
