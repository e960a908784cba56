// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/siderolabs/upld/pkg/upl"
)

var inspectCmdFlags struct {
	Kernel string
}

// inspectCmd prints the boot header of a kernel image.
var inspectCmd = &cobra.Command{
	Use:          "inspect",
	Short:        "Print the boot header fields of a kernel image.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, err := os.ReadFile(inspectCmdFlags.Kernel)
		if err != nil {
			return err
		}

		inspection, err := upl.Inspect(raw)
		if err != nil {
			return err
		}

		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent(2)

		if err = encoder.Encode(inspection); err != nil {
			return err
		}

		return encoder.Close()
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectCmdFlags.Kernel, "kernel", "", "Path to the Linux kernel bzImage")
	inspectCmd.MarkFlagRequired("kernel") //nolint:errcheck

	rootCmd.AddCommand(inspectCmd)
}
