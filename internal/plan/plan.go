package plan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/color"
	"github.com/fenixflow/ff-storage-sub000/internal/diff"
	"github.com/fenixflow/ff-storage-sub000/internal/fingerprint"
	"github.com/fenixflow/ff-storage-sub000/internal/version"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

// Plan is an ordered set of schema changes with the DDL for each.
type Plan struct {
	Dialect db.Dialect `json:"dialect"`

	// Steps keeps the differ's apply order. Skipped steps are destructive
	// changes left out because destructive changes were not allowed.
	Steps []Step `json:"steps"`

	CreatedAt time.Time `json:"created_at"`

	// EnableTransaction is false for MySQL, where every DDL statement
	// commits implicitly.
	EnableTransaction bool `json:"enable_transaction"`

	// Fingerprint of the live schema the plan was computed against.
	Fingerprint *fingerprint.SchemaFingerprint `json:"fingerprint,omitempty"`

	// Tables lists the tables the fingerprint covers.
	Tables []TableRef `json:"tables,omitempty"`
}

// TableRef names a table the plan was computed against.
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Step is one change and the statements that apply it.
type Step struct {
	Change  diff.SchemaChange `json:"change"`
	SQL     []string          `json:"sql"`
	Skipped bool              `json:"skipped,omitempty"`
}

// ObjectChange represents a single change to a database object
type ObjectChange struct {
	Address     string   `json:"address"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Schema      string   `json:"schema,omitempty"`
	Table       string   `json:"table,omitempty"`
	Change      Change   `json:"change"`
	Destructive bool     `json:"destructive,omitempty"`
	Skipped     bool     `json:"skipped,omitempty"`
	SQL         []string `json:"sql,omitempty"`
}

// Change represents the actual change being made
type Change struct {
	Actions []string       `json:"actions"`
	Before  map[string]any `json:"before"`
	After   map[string]any `json:"after"`
}

// PlanJSON represents the structured JSON output format
type PlanJSON struct {
	Version          string         `json:"version"`
	FFStorageVersion string         `json:"ffstorage_version"`
	CreatedAt        time.Time      `json:"created_at"`
	Dialect          string         `json:"dialect"`
	Transaction      bool           `json:"transaction"`
	Fingerprint      string         `json:"fingerprint,omitempty"`
	Summary          PlanSummary    `json:"summary"`
	ObjectChanges    []ObjectChange `json:"object_changes"`
}

// PlanSummary provides counts of changes by type. Skipped changes are
// counted separately and not included in Total.
type PlanSummary struct {
	Add     int                    `json:"add"`
	Change  int                    `json:"change"`
	Destroy int                    `json:"destroy"`
	Skipped int                    `json:"skipped"`
	Total   int                    `json:"total"`
	ByType  map[string]TypeSummary `json:"by_type"`
}

// TypeSummary provides counts for a specific object type
type TypeSummary struct {
	Add     int `json:"add"`
	Change  int `json:"change"`
	Destroy int `json:"destroy"`
}

// ObjectType groups changes for display
type ObjectType string

const (
	ObjectTypeTable  ObjectType = "tables"
	ObjectTypeColumn ObjectType = "columns"
	ObjectTypeIndex  ObjectType = "indexes"
)

func getObjectOrder() []ObjectType {
	return []ObjectType{ObjectTypeTable, ObjectTypeColumn, ObjectTypeIndex}
}

func objectTypeOf(c diff.SchemaChange) ObjectType {
	switch c.Type.ObjectType() {
	case "table":
		return ObjectTypeTable
	case "index":
		return ObjectTypeIndex
	default:
		return ObjectTypeColumn
	}
}

// action maps a change to the create/update/delete vocabulary of the JSON
// output.
func action(c diff.SchemaChange) string {
	switch c.Type.Operation() {
	case "create":
		return "create"
	case "drop":
		return "delete"
	default:
		return "update"
	}
}

// ========== PUBLIC METHODS ==========

// NewPlan renders changes with g. Destructive changes are kept as skipped
// steps unless allowDestructive is set.
func NewPlan(g diff.Generator, changes []diff.SchemaChange, allowDestructive bool) (*Plan, error) {
	p := &Plan{
		Dialect:           g.Dialect(),
		CreatedAt:         time.Now(),
		EnableTransaction: g.Dialect().SupportsTransactionalDDL(),
	}
	for _, c := range changes {
		stmts, err := g.Generate(c)
		if err != nil {
			return nil, fmt.Errorf("failed to generate DDL for %s: %w", c.Path(), err)
		}
		p.Steps = append(p.Steps, Step{
			Change:  c,
			SQL:     stmts,
			Skipped: c.Destructive && !allowDestructive,
		})
	}
	return p, nil
}

// Pending returns the steps that will run.
func (p *Plan) Pending() []Step {
	var steps []Step
	for _, s := range p.Steps {
		if !s.Skipped {
			steps = append(steps, s)
		}
	}
	return steps
}

// Skipped returns the destructive changes left out of the plan.
func (p *Plan) Skipped() []diff.SchemaChange {
	var changes []diff.SchemaChange
	for _, s := range p.Steps {
		if s.Skipped {
			changes = append(changes, s.Change)
		}
	}
	return changes
}

// HasChanges reports whether any step will run.
func (p *Plan) HasChanges() bool {
	return len(p.Pending()) > 0
}

// Statements returns the SQL of the pending steps in execution order.
func (p *Plan) Statements() []string {
	var stmts []string
	for _, s := range p.Pending() {
		stmts = append(stmts, s.SQL...)
	}
	return stmts
}

// Summary counts the pending changes by action and object type.
func (p *Plan) Summary() PlanSummary {
	summary := PlanSummary{ByType: make(map[string]TypeSummary)}
	for _, s := range p.Steps {
		if s.Skipped {
			summary.Skipped++
			continue
		}
		objType := string(objectTypeOf(s.Change))
		stats := summary.ByType[objType]
		switch action(s.Change) {
		case "create":
			stats.Add++
			summary.Add++
		case "update":
			stats.Change++
			summary.Change++
		case "delete":
			stats.Destroy++
			summary.Destroy++
		}
		summary.ByType[objType] = stats
	}
	summary.Total = summary.Add + summary.Change + summary.Destroy
	return summary
}

// HumanColored returns a human-readable summary of the plan with color support
func (p *Plan) HumanColored(enableColor bool) string {
	c := color.New(enableColor)
	var out strings.Builder
	summary := p.Summary()

	if summary.Total == 0 && summary.Skipped == 0 {
		out.WriteString("No changes detected.\n")
		return out.String()
	}

	out.WriteString(c.FormatPlanHeader(summary.Add, summary.Change, summary.Destroy) + "\n\n")

	if summary.Total > 0 {
		out.WriteString(c.Bold("Summary by type:") + "\n")
		for _, objType := range getObjectOrder() {
			ts, ok := summary.ByType[string(objType)]
			if ok && (ts.Add > 0 || ts.Change > 0 || ts.Destroy > 0) {
				out.WriteString(c.FormatSummaryLine(string(objType), ts.Add, ts.Change, ts.Destroy) + "\n")
			}
		}
		out.WriteString("\n")

		for _, objType := range getObjectOrder() {
			if ts, ok := summary.ByType[string(objType)]; ok && (ts.Add > 0 || ts.Change > 0 || ts.Destroy > 0) {
				display := strings.ToUpper(string(objType)[:1]) + string(objType)[1:]
				p.writeDetailedChanges(&out, display, objType, c)
			}
		}
	}

	if skipped := p.Skipped(); len(skipped) > 0 {
		fmt.Fprintf(&out, "%s\n", c.Bold("Skipped destructive changes (allow destructive changes to apply):"))
		for _, s := range skipped {
			fmt.Fprintf(&out, "  %s %s\n", c.Destroy("!"), s.Description)
		}
		out.WriteString("\n")
	}

	if summary.Total > 0 {
		fmt.Fprintf(&out, "Transaction: %t\n\n", p.EnableTransaction)
		out.WriteString(c.Bold("DDL to be executed:") + "\n")
		out.WriteString(strings.Repeat("-", 50) + "\n\n")
		out.WriteString(p.ToSQL())
	}
	return out.String()
}

// ToJSON returns the plan as structured JSON
func (p *Plan) ToJSON() (string, error) {
	data, err := json.MarshalIndent(p.convertToStructuredJSON(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan to JSON: %w", err)
	}
	return string(data), nil
}

// ToSQL returns the pending statements, each terminated by a semicolon
func (p *Plan) ToSQL() string {
	var b strings.Builder
	for _, stmt := range p.Statements() {
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}
	return b.String()
}

// ========== PRIVATE METHODS ==========

func (p *Plan) writeDetailedChanges(out *strings.Builder, displayName string, objType ObjectType, c *color.Color) {
	fmt.Fprintf(out, "%s:\n", c.Bold(displayName))
	for _, s := range p.Pending() {
		if objectTypeOf(s.Change) != objType {
			continue
		}
		fmt.Fprintf(out, "  %s %s\n", c.PlanSymbol(action(s.Change)), s.Change.Description)
	}
	out.WriteString("\n")
}

func (p *Plan) convertToStructuredJSON() *PlanJSON {
	planJSON := &PlanJSON{
		Version:          version.PlanFormat(),
		FFStorageVersion: version.App(),
		CreatedAt:        p.CreatedAt.Truncate(time.Second),
		Dialect:          p.Dialect.String(),
		Transaction:      p.EnableTransaction,
		Summary:          p.Summary(),
		ObjectChanges:    []ObjectChange{},
	}
	if p.Fingerprint != nil {
		planJSON.Fingerprint = p.Fingerprint.Hash
	}
	for _, s := range p.Steps {
		planJSON.ObjectChanges = append(planJSON.ObjectChanges, createObjectChange(s))
	}
	// keep apply order within an address; sort only for stable diffs of
	// the JSON between runs
	sort.SliceStable(planJSON.ObjectChanges, func(i, j int) bool {
		return planJSON.ObjectChanges[i].Address < planJSON.ObjectChanges[j].Address
	})
	return planJSON
}

func createObjectChange(s Step) ObjectChange {
	c := s.Change
	oc := ObjectChange{
		Address:     c.Path(),
		Type:        string(objectTypeOf(c)),
		Schema:      c.Schema,
		Table:       c.Table,
		Destructive: c.Destructive,
		Skipped:     s.Skipped,
		SQL:         s.SQL,
		Change:      Change{Actions: []string{action(c)}},
	}

	switch objectTypeOf(c) {
	case ObjectTypeTable:
		oc.Name = c.Table
		oc.Table = ""
		if c.TableDef != nil {
			m := tableToMap(c.TableDef)
			if c.Type == diff.ChangeAddTable {
				oc.Change.After = m
			} else {
				oc.Change.Before = m
			}
		}
	case ObjectTypeIndex:
		oc.Name = c.Index.Name
		m := indexToMap(c.Index)
		if c.Type == diff.ChangeAddIndex {
			oc.Change.After = m
		} else {
			oc.Change.Before = m
		}
	default:
		if c.Column != nil {
			oc.Name = c.Column.Name
			oc.Change.After = columnToMap(c.Column)
		}
		if c.OldColumn != nil {
			oc.Name = c.OldColumn.Name
			oc.Change.Before = columnToMap(c.OldColumn)
		}
	}
	return oc
}

func tableToMap(t *ir.TableDefinition) map[string]any {
	cols := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		cols[i] = col.Name
	}
	return map[string]any{
		"name":        t.Name,
		"schema":      t.Schema,
		"columns":     cols,
		"primary_key": t.PrimaryKey(),
	}
}

func columnToMap(c *ir.ColumnDefinition) map[string]any {
	m := map[string]any{
		"name":     c.Name,
		"type":     c.NativeType,
		"nullable": c.Nullable,
	}
	if c.Default != nil {
		m["default"] = *c.Default
	}
	return m
}

func indexToMap(idx *ir.IndexDefinition) map[string]any {
	m := map[string]any{
		"name":      idx.Name,
		"columns":   idx.Columns,
		"is_unique": idx.Unique,
	}
	if idx.WhereClause != "" {
		m["where"] = idx.WhereClause
	}
	return m
}
