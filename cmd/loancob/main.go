package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/spf13/cobra"

	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// embeddedConfig is the application YAML compiled into the binary. Values may reference
// environment variables as ${VAR}.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

var Version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loancob",
		Short:         "Close-of-business processing for loan accounts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(flagEnvFile, ".env", "path of the .env file (env: ENV_FILE_PATH)")
	rootCmd.PersistentFlags().StringSlice(flagDBAdapters, nil, "database adapters to register: postgres, mysql, sqlite (env: DB_ADAPTORS)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(catchUpCmd())
	rootCmd.AddCommand(inlineCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(lockCmd())
	rootCmd.AddCommand(businessDateCmd())
	return rootCmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling for graceful shutdown (e.g., Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
