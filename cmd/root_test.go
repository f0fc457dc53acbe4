package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fenixflow/ff-storage-sub000/internal/logger"
)

func TestRootCommand(t *testing.T) {
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	RootCmd.SetArgs([]string{"--help"})
	t.Cleanup(func() { RootCmd.SetArgs(nil) })

	if err := RootCmd.Execute(); err != nil {
		t.Errorf("root command with --help failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "ffstorage keeps PostgreSQL, MySQL and SQL Server tables") {
		t.Errorf("expected help output to contain description, got: %s", output)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, expected := range []string{"sync", "plan", "inspect", "version"} {
		if !names[expected] {
			t.Errorf("expected subcommand %s not found in: %v", expected, names)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	t.Cleanup(func() {
		Debug = false
		setupLogger()
	})

	Debug = true
	setupLogger()
	if !logger.IsDebug() {
		t.Error("IsDebug() = false after --debug")
	}

	Debug = false
	setupLogger()
	if logger.IsDebug() {
		t.Error("IsDebug() = true without --debug")
	}
}
