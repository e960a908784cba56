// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/siderolabs/upld/internal/pkg/bootparams"
	"github.com/siderolabs/upld/internal/pkg/edk2"
	"github.com/siderolabs/upld/internal/pkg/section"
	"github.com/siderolabs/upld/pkg/argsbuilder"
	"github.com/siderolabs/upld/pkg/cli"
	toolcmd "github.com/siderolabs/upld/pkg/cmd"
	"github.com/siderolabs/upld/pkg/logging"
	"github.com/siderolabs/upld/pkg/upl"
	"github.com/siderolabs/upld/pkg/upl/profile"
)

type buildFlags struct {
	Profile          string
	Workspace        string
	BuildTarget      string
	Toolchain        string
	Arch             string
	ImageID          string
	Defines          Defines
	Kernel           string
	Initramfs        string
	Output           string
	Objcopy          string
	BootParamsPolicy string
}

var buildCmdFlags buildFlags

// buildCmd builds the payload, it is also the default action of rootCmd.
var buildCmd = &cobra.Command{
	Use:          "build",
	Short:        "Build the universal payload ELF.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBuild,
}

func runBuild(cmd *cobra.Command, _ []string) error {
	prof, err := buildCmdFlags.profile(cmd.Flags(), cmd.InOrStdin())
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr()).With(logging.Component("upl"))
	defer logger.Sync() //nolint:errcheck

	return cli.WithContext(context.Background(), func(ctx context.Context) error {
		builder := &upl.Builder{
			Profile: prof,
			Runner:  &toolcmd.ExecRunner{Logger: logger},
			Logger:  logger,
		}

		output, err := builder.Build(ctx)
		if err != nil {
			return fmt.Errorf("build failed at stage %s: %w", builder.Stage(), err)
		}

		cli.Success(cmd.ErrOrStderr(), "Successfully built universal payload")
		fmt.Fprintln(cmd.OutOrStdout(), output) //nolint:errcheck

		return nil
	})
}

// objcopyPath resolves llvm-objcopy from the CLANG_BIN directory, or PATH if unset.
func objcopyPath(clangBin string) string {
	if clangBin == "" {
		return section.DefaultObjcopy
	}

	return filepath.Join(clangBin, section.DefaultObjcopy)
}

func addBuildFlags(flags *pflag.FlagSet, f *buildFlags, getenv func(string) string) {
	flags.StringVar(&f.Profile, "profile", "", "Load build profile from a YAML file, - for stdin; flags set explicitly override it")
	flags.StringVar(&f.Workspace, "workspace", getenv("WORKSPACE"), "EDK2 workspace root")
	flags.StringVarP(&f.BuildTarget, "target", "b", edk2.DefaultBuildTarget, "EDK2 build target")
	flags.StringVarP(&f.Toolchain, "toolchain", "t", edk2.DefaultToolchain, "EDK2 toolchain tag")
	flags.StringVarP(&f.Arch, "arch", "a", edk2.ArchIA32, "Entry module architecture ("+edk2.ArchIA32+" or "+edk2.ArchX64+")")
	flags.StringVarP(&f.ImageID, "image-id", "i", profile.DefaultImageID, "Payload image id (16 bytes maximal)")
	flags.VarP(&f.Defines, "define", "D", "Macro passed to the EDK2 build, can be repeated")
	flags.StringVar(&f.Kernel, "kernel", "", "Path to the Linux kernel bzImage")
	flags.StringVar(&f.Initramfs, "initramfs", "", "Path to the initramfs")
	flags.StringVar(&f.Output, "output", "", "Output path, defaults to UniversalPayload.elf in the build directory")
	flags.StringVar(&f.Objcopy, "objcopy", objcopyPath(getenv("CLANG_BIN")), "Path to llvm-objcopy")
	flags.StringVar(&f.BootParamsPolicy, "boot-params-policy", bootparams.DefaultPolicy,
		"Boot params population policy ("+strings.Join(bootparams.Policies(), ", ")+")")
}

// profile assembles the build profile from the optional profile file and the flags.
//
//nolint:gocyclo
func (f *buildFlags) profile(flags *pflag.FlagSet, stdin io.Reader) (profile.Profile, error) {
	prof := profile.Default()
	fromFile := f.Profile != ""

	if fromFile {
		r := stdin

		if f.Profile != "-" {
			file, err := os.Open(f.Profile)
			if err != nil {
				return profile.Profile{}, err
			}

			defer file.Close() //nolint:errcheck

			r = file
		}

		var err error

		if prof, err = profile.Load(r); err != nil {
			return profile.Profile{}, err
		}
	}

	for _, opt := range []struct {
		flag  string
		apply func()
	}{
		{"workspace", func() { prof.Workspace = f.Workspace }},
		{"target", func() { prof.BuildTarget = f.BuildTarget }},
		{"toolchain", func() { prof.Toolchain = f.Toolchain }},
		{"arch", func() { prof.Arch = f.Arch }},
		{"image-id", func() { prof.ImageID = f.ImageID }},
		{"kernel", func() { prof.Input.Kernel = f.Kernel }},
		{"initramfs", func() { prof.Input.Initramfs = f.Initramfs }},
		{"output", func() { prof.Output.Path = f.Output }},
		{"objcopy", func() { prof.Tools.Objcopy = f.Objcopy }},
		{"boot-params-policy", func() { prof.BootParamsPolicy = f.BootParamsPolicy }},
	} {
		if !fromFile || flags.Changed(opt.flag) {
			opt.apply()
		}
	}

	// environment defaults fill what the profile left unset
	if prof.Workspace == "" {
		prof.Workspace = f.Workspace
	}

	if prof.Tools.Objcopy == "" {
		prof.Tools.Objcopy = f.Objcopy
	}

	if defines := f.Defines.Args(); len(defines) > 0 {
		if prof.Defines == nil {
			prof.Defines = argsbuilder.Args{}
		}

		if err := prof.Defines.Merge(defines); err != nil {
			return profile.Profile{}, err
		}
	}

	if err := prof.Absolute(); err != nil {
		return profile.Profile{}, err
	}

	return prof, nil
}

func init() {
	addBuildFlags(buildCmd.Flags(), &buildCmdFlags, os.Getenv)
	rootCmd.AddCommand(buildCmd)
}
