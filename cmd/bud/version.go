package main

import (
	"fmt"

	"github.com/spf13/cobra"

	bud "github.com/budecosystem/bud-go"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the SDK version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "bud", bud.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
