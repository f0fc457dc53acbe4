// Package sync holds the commands that bring database tables in line with
// model descriptors.
package sync

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenixflow/ff-storage-sub000/cmd/util"
	"github.com/fenixflow/ff-storage-sub000/internal/schema"
)

var (
	syncConn             util.ConnectionFlags
	syncModels           []string
	syncAllowDestructive bool
	syncDryRun           bool
	syncAutoApprove      bool
	syncNoColor          bool
)

var SyncCmd = &cobra.Command{
	Use:          "sync",
	Short:        "Create and alter tables to match model descriptors",
	Long:         "Compare the tables described by the model files (--models) with the live database and apply the additive changes. Destructive changes (type changes, NOT NULL backfills, drops) need --allow-destructive.",
	RunE:         runSync,
	SilenceUsage: true,
	PreRunE:      syncConn.PreRunE,
}

func init() {
	syncConn.Register(SyncCmd)
	SyncCmd.Flags().StringSliceVar(&syncModels, "models", nil, "Model YAML files or directories (required)")
	SyncCmd.Flags().BoolVar(&syncAllowDestructive, "allow-destructive", false, "Apply type changes, NOT NULL backfills and drops")
	SyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show the plan without applying changes")
	SyncCmd.Flags().BoolVar(&syncAutoApprove, "auto-approve", false, "Apply changes without prompting for approval")
	SyncCmd.Flags().BoolVar(&syncNoColor, "no-color", false, "Disable colored output")

	SyncCmd.MarkFlagRequired("models")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	models, err := loadModels(syncModels)
	if err != nil {
		return err
	}

	database, err := syncConn.Connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	m, err := schema.NewManager(database, database.Dialect)
	if err != nil {
		return err
	}

	p, err := m.Plan(ctx, models, schema.SyncOptions{AllowDestructive: syncAllowDestructive})
	if err != nil {
		return err
	}
	if !p.HasChanges() && len(p.Skipped()) == 0 {
		fmt.Fprintln(out, "No changes to apply. Database schema is already up to date.")
		return nil
	}

	fmt.Fprint(out, p.HumanColored(!syncNoColor))

	if skipped := p.Skipped(); len(skipped) > 0 {
		return fmt.Errorf("%d destructive change(s) were skipped; rerun with --allow-destructive to apply them", len(skipped))
	}
	if syncDryRun {
		return nil
	}

	if !syncAutoApprove {
		fmt.Fprint(out, "\nDo you want to apply these changes? (yes/no): ")
		response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read user input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" && response != "y" {
			fmt.Fprintln(out, "Apply cancelled.")
			return nil
		}
	}

	fmt.Fprintln(out, "\nApplying changes...")
	n, err := m.Apply(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Applied %d change(s) successfully!\n", n)
	return nil
}
