package sync

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenixflow/ff-storage-sub000/cmd/util"
	"github.com/fenixflow/ff-storage-sub000/internal/plan"
	"github.com/fenixflow/ff-storage-sub000/internal/schema"
)

var (
	planConn             util.ConnectionFlags
	planModels           []string
	planAllowDestructive bool
	outputHuman          string
	outputJSON           string
	outputSQL            string
	planNoColor          bool
)

var PlanCmd = &cobra.Command{
	Use:          "plan",
	Short:        "Show the DDL needed to bring tables in line with models",
	Long:         "Compare the tables described by the model files (--models) with the live database and print the schema changes a sync would apply. Nothing is executed.",
	RunE:         runPlan,
	SilenceUsage: true,
	PreRunE:      planConn.PreRunE,
}

func init() {
	planConn.Register(PlanCmd)
	PlanCmd.Flags().StringSliceVar(&planModels, "models", nil, "Model YAML files or directories (required)")
	PlanCmd.Flags().BoolVar(&planAllowDestructive, "allow-destructive", false, "Plan type changes, NOT NULL backfills and drops instead of skipping them")

	PlanCmd.Flags().StringVar(&outputHuman, "output-human", "", "Output human-readable format to stdout or file path")
	PlanCmd.Flags().StringVar(&outputJSON, "output-json", "", "Output JSON format to stdout or file path")
	PlanCmd.Flags().StringVar(&outputSQL, "output-sql", "", "Output SQL format to stdout or file path")
	PlanCmd.Flags().BoolVar(&planNoColor, "no-color", false, "Disable colored output")

	PlanCmd.MarkFlagRequired("models")
}

func runPlan(cmd *cobra.Command, args []string) error {
	outputs, err := determineOutputs(outputHuman, outputJSON, outputSQL)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := GeneratePlan(ctx, &planConn, planModels, planAllowDestructive)
	if err != nil {
		return err
	}

	for _, output := range outputs {
		if err := processOutput(p, output, cmd.OutOrStdout(), planNoColor); err != nil {
			return err
		}
	}
	return nil
}

// GeneratePlan loads the models and plans them against the database.
func GeneratePlan(ctx context.Context, conn *util.ConnectionFlags, modelPaths []string, allowDestructive bool) (*plan.Plan, error) {
	models, err := loadModels(modelPaths)
	if err != nil {
		return nil, err
	}

	database, err := conn.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	m, err := schema.NewManager(database, database.Dialect)
	if err != nil {
		return nil, err
	}
	return m.Plan(ctx, models, schema.SyncOptions{AllowDestructive: allowDestructive})
}

type outputSpec struct {
	format string // "human", "json", or "sql"
	target string // "stdout" or file path
}

func determineOutputs(human, jsonTarget, sqlTarget string) ([]outputSpec, error) {
	var outputs []outputSpec
	stdoutCount := 0
	for _, o := range []outputSpec{
		{format: "human", target: human},
		{format: "json", target: jsonTarget},
		{format: "sql", target: sqlTarget},
	} {
		if o.target == "" {
			continue
		}
		if o.target == "stdout" {
			stdoutCount++
		}
		outputs = append(outputs, o)
	}

	if stdoutCount > 1 {
		return nil, fmt.Errorf("only one output format can use stdout")
	}
	if len(outputs) == 0 {
		outputs = append(outputs, outputSpec{format: "human", target: "stdout"})
	}
	return outputs, nil
}

func processOutput(p *plan.Plan, output outputSpec, stdout io.Writer, noColor bool) error {
	var content string
	switch output.format {
	case "human":
		content = p.HumanColored(output.target == "stdout" && !noColor)
	case "json":
		js, err := p.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to generate JSON output: %w", err)
		}
		content = js + "\n"
	case "sql":
		content = p.ToSQL()
	default:
		return fmt.Errorf("unknown output format: %s", output.format)
	}

	if output.target == "stdout" {
		_, err := io.WriteString(stdout, content)
		return err
	}
	if err := os.WriteFile(output.target, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s output to %s: %w", output.format, output.target, err)
	}
	return nil
}
