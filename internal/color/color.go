package color

import (
	"fmt"
	"os"
	"strings"
)

// ANSI escape sequences
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Bold   = "\033[1m"
)

// Color wraps text in ANSI escapes when enabled
type Color struct {
	enabled bool
}

// New creates a Color. Color stays off when NO_COLOR is set or the
// terminal is dumb, whatever enabled says.
func New(enabled bool) *Color {
	return &Color{enabled: enabled && terminalSupportsColor()}
}

// Enabled reports whether escapes are written.
func (c *Color) Enabled() bool { return c.enabled }

func terminalSupportsColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

func (c *Color) paint(code, text string) string {
	if !c.enabled {
		return text
	}
	return code + text + Reset
}

// Add colors additions green
func (c *Color) Add(text string) string { return c.paint(Green, text) }

// Change colors modifications yellow
func (c *Color) Change(text string) string { return c.paint(Yellow, text) }

// Destroy colors deletions red
func (c *Color) Destroy(text string) string { return c.paint(Red, text) }

// Bold makes text bold
func (c *Color) Bold(text string) string { return c.paint(Bold, text) }

// Cyan colors headers and labels
func (c *Color) Cyan(text string) string { return c.paint(Cyan, text) }

// PlanSymbol returns the symbol for a plan action
func (c *Color) PlanSymbol(action string) string {
	switch action {
	case "add", "create":
		return c.Add("+")
	case "change", "modify", "update":
		return c.Change("~")
	case "destroy", "drop", "delete":
		return c.Destroy("-")
	default:
		return " "
	}
}

func (c *Color) counts(added, modified, dropped int) string {
	return strings.Join([]string{
		c.Add(fmt.Sprintf("%d to add", added)),
		c.Change(fmt.Sprintf("%d to modify", modified)),
		c.Destroy(fmt.Sprintf("%d to drop", dropped)),
	}, ", ")
}

// FormatSummaryLine formats the counts of one object type
func (c *Color) FormatSummaryLine(objectType string, added, modified, dropped int) string {
	return fmt.Sprintf("  %s: %s", objectType, c.counts(added, modified, dropped))
}

// FormatPlanHeader formats the overall plan counts
func (c *Color) FormatPlanHeader(added, modified, dropped int) string {
	return fmt.Sprintf("Plan: %s.", c.counts(added, modified, dropped))
}
