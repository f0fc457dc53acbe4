package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fenixflow/ff-storage-sub000/cmd/util"
	"github.com/fenixflow/ff-storage-sub000/internal/diff"
	"github.com/fenixflow/ff-storage-sub000/internal/version"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

var (
	inspectConn   util.ConnectionFlags
	inspectSchema string
	inspectTables []string
)

var InspectCmd = &cobra.Command{
	Use:          "inspect",
	Short:        "Print live tables as DDL",
	Long:         "Introspect tables of the target database and print them as the CREATE TABLE and CREATE INDEX statements ffstorage would generate for them. Without --table every table of the schema is printed.",
	RunE:         runInspect,
	SilenceUsage: true,
	PreRunE:      inspectConn.PreRunE,
}

func init() {
	inspectConn.Register(InspectCmd)
	InspectCmd.Flags().StringVar(&inspectSchema, "schema", "", "Schema name (default: the dialect's default schema)")
	InspectCmd.Flags().StringSliceVar(&inspectTables, "table", nil, "Tables to print (default: all)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := inspectConn.Connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	inspector, err := ir.NewInspector(database.Dialect, database)
	if err != nil {
		return err
	}
	tables, err := collectTables(ctx, inspector, inspectSchema, inspectTables)
	if err != nil {
		return err
	}

	g, err := diff.NewGenerator(database.Dialect)
	if err != nil {
		return err
	}
	return writeTables(cmd.OutOrStdout(), g, tables)
}

func collectTables(ctx context.Context, inspector ir.Inspector, schema string, names []string) ([]*ir.TableDefinition, error) {
	if len(names) == 0 {
		all, err := inspector.GetTables(ctx, schema)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect schema: %w", err)
		}
		tables := make([]*ir.TableDefinition, 0, len(all))
		for _, t := range all {
			tables = append(tables, t)
		}
		sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
		return tables, nil
	}

	tables := make([]*ir.TableDefinition, 0, len(names))
	for _, name := range names {
		t, ok, err := inspector.GetTable(ctx, name, schema)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect %s: %w", name, err)
		}
		if !ok {
			return nil, fmt.Errorf("table %s does not exist", name)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func writeTables(w io.Writer, g diff.Generator, tables []*ir.TableDefinition) error {
	fmt.Fprintln(w, "--")
	fmt.Fprintf(w, "-- %s tables, introspected by %s\n", g.Dialect(), version.String())
	fmt.Fprintln(w, "--")
	fmt.Fprintln(w)

	for _, t := range tables {
		stmts, err := g.CreateTable(t)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", t.QualifiedName(), err)
		}
		for _, s := range stmts {
			fmt.Fprintf(w, "%s;\n\n", s)
		}
	}
	return nil
}
