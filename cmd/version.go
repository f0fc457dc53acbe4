package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenixflow/ff-storage-sub000/internal/version"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display the version number of ffstorage",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}
