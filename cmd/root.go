package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenixflow/ff-storage-sub000/cmd/sync"
	"github.com/fenixflow/ff-storage-sub000/internal/logger"
	"github.com/fenixflow/ff-storage-sub000/internal/version"
)

var Debug bool

var RootCmd = &cobra.Command{
	Use:   "ffstorage",
	Short: "Schema sync for temporal storage models",
	Long: fmt.Sprintf(`ffstorage keeps PostgreSQL, MySQL and SQL Server tables in line with
model descriptors.

Version: %s

Commands:
  sync     Create and alter tables to match the models
  plan     Show the DDL a sync would run
  inspect  Print a live table as DDL

Use "ffstorage [command] --help" for more information about a command.`, version.String()),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "Enable debug logging")
	RootCmd.AddCommand(sync.SyncCmd)
	RootCmd.AddCommand(sync.PlanCmd)
	RootCmd.AddCommand(InspectCmd)
	RootCmd.AddCommand(VersionCmd)
}

func setupLogger() {
	logger.Setup(os.Stderr, Debug)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
