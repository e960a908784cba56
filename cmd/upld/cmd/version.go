// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siderolabs/upld/pkg/version"
)

var versionCmdFlags struct {
	Short bool
}

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if versionCmdFlags.Short {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Short())

			return err
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), version.Name+":"); err != nil {
			return err
		}

		return version.WriteLong(cmd.OutOrStdout(), version.New())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCmdFlags.Short, "short", false, "Print the short version")

	rootCmd.AddCommand(versionCmd)
}
