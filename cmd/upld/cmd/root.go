// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd implements the upld commands.
package cmd

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/upld/pkg/logging"
)

var rootCmdFlags struct {
	Debug bool
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "upld",
	Short:        "Build the Linux universal payload.",
	Long:         `Builds the EDK2 Linux payload entry module and embeds the kernel, its boot params and an optional initramfs into it.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBuild,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	if rootCmdFlags.Debug {
		level = zapcore.DebugLevel
	}

	opts := []logging.EncoderOption{logging.WithoutTimestamp()}

	if !color.NoColor {
		opts = append(opts, logging.WithColoredLevels())
	}

	return logging.ZapLogger(logging.NewLogDestination(w, level, opts...))
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootCmdFlags.Debug, "debug", false, "Enable debug logging")

	addBuildFlags(rootCmd.Flags(), &buildCmdFlags, os.Getenv)
}
