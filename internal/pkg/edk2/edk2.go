// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package edk2 invokes the EDK2 build of the payload entry module.
package edk2

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/siderolabs/upld/internal/pkg/section"
	"github.com/siderolabs/upld/pkg/argsbuilder"
	"github.com/siderolabs/upld/pkg/cmd"
)

// Well-known EDK2 names of the Linux payload.
const (
	BuildCommand   = "build"
	Platform       = "UefiPayloadPkg/LinuxUefiPayloadPkg.dsc"
	EntryModule    = "UefiPayloadPkg/UefiPayloadEntry/LinuxUniversalPayloadEntry.inf"
	BuildDir       = "Build/LinuxUefiPayloadPkg"
	ReportName     = "UefiUniversalPayloadEntry.txt"
	EntryImageName = "UniversalPayloadEntry.dll"

	DefaultToolchain   = "CLANGDWARF"
	DefaultBuildTarget = "DEBUG"
)

// Supported architectures.
const (
	ArchIA32 = "IA32"
	ArchX64  = "X64"
)

// BFDTarget returns the object format of modules built for arch.
func BFDTarget(arch string) (string, error) {
	switch arch {
	case ArchIA32:
		return section.BFDTargetIA32, nil
	case ArchX64:
		return section.BFDTargetX64, nil
	default:
		return "", fmt.Errorf("unsupported architecture %q", arch)
	}
}

// Module is a single module build of an EDK2 platform.
type Module struct {
	Platform    string
	BuildTarget string
	Arch        string
	Module      string
	Toolchain   string
	// Report is the module report file, not requested if empty.
	Report  string
	Defines argsbuilder.Args
}

// Args returns the arguments of the build command.
func (m *Module) Args() []string {
	args := []string{
		"-p", m.Platform,
		"-b", m.BuildTarget,
		"-a", m.Arch,
		"-m", m.Module,
		"-t", m.Toolchain,
	}

	if m.Report != "" {
		args = append(args, "-y", m.Report)
	}

	return append(args, m.Defines.Defines()...)
}

// OutputPath returns the path of the built entry image under buildDir.
//
// The module name directory is the .inf base name, the innermost DEBUG directory
// doesn't depend on the build target.
func (m *Module) OutputPath(buildDir string) string {
	moduleDir := filepath.Dir(filepath.FromSlash(m.Module))
	moduleName := filepath.Base(m.Module)
	moduleName = moduleName[:len(moduleName)-len(filepath.Ext(moduleName))]

	return filepath.Join(
		buildDir,
		fmt.Sprintf("%s_%s", m.BuildTarget, m.Toolchain),
		m.Arch,
		moduleDir,
		moduleName,
		"DEBUG",
		EntryImageName,
	)
}

// Build runs the module build in the workspace dir.
func (m *Module) Build(ctx context.Context, runner cmd.Runner, dir string) error {
	if _, err := runner.Run(ctx, cmd.Command{Name: BuildCommand, Args: m.Args(), Dir: dir}); err != nil {
		return fmt.Errorf("error building module %s: %w", m.Module, err)
	}

	return nil
}
