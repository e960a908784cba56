// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package profile contains definition of the payload build profile.
package profile

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/siderolabs/go-pointer"
	"gopkg.in/yaml.v3"

	"github.com/siderolabs/upld/internal/pkg/bootparams"
	"github.com/siderolabs/upld/internal/pkg/edk2"
	"github.com/siderolabs/upld/internal/pkg/section"
	"github.com/siderolabs/upld/pkg/argsbuilder"
)

// Well-known file names inside the build directory.
const (
	InfoFileName       = "UniversalPayloadInfo.bin"
	BootParamsFileName = "LinuxBootParams.bin"
	VmLinuxFileName    = "VmLinux.bin"
	OutputFileName     = "UniversalPayload.elf"
)

// DefaultImageID is the payload image id used when none is set.
const DefaultImageID = "UEFI"

// Profile describes a payload build.
type Profile struct {
	// Workspace is the EDK2 workspace root, the build runs there.
	Workspace string `yaml:"workspace"`
	// BuildTarget of the EDK2 build: DEBUG, RELEASE, NOOPT.
	BuildTarget string `yaml:"buildTarget"`
	// Toolchain tag of the EDK2 build.
	Toolchain string `yaml:"toolchain"`
	// Arch of the entry module: IA32 or X64.
	Arch string `yaml:"arch"`
	// ImageID is stored in the payload info header, truncated to 16 bytes.
	ImageID string `yaml:"imageID"`
	// Defines are passed to the EDK2 build as -D KEY=VALUE.
	Defines argsbuilder.Args `yaml:"defines,omitempty"`
	// BootParamsPolicy selects the boot params projection.
	BootParamsPolicy string `yaml:"bootParamsPolicy"`
	// ModuleReport enables the EDK2 module report.
	ModuleReport *bool `yaml:"moduleReport,omitempty"`

	// Input describes the payload inputs.
	Input Input `yaml:"input"`
	// Output describes the build result.
	Output Output `yaml:"output,omitempty"`
	// Tools overrides external tool paths.
	Tools Tools `yaml:"tools,omitempty"`
}

// Input describes the payload inputs.
type Input struct {
	// Kernel is the bzImage path.
	Kernel string `yaml:"kernel"`
	// Initramfs is optional.
	Initramfs string `yaml:"initramfs,omitempty"`
}

// Output describes the build result.
type Output struct {
	// Path of the final payload, defaults to UniversalPayload.elf in the build directory.
	Path string `yaml:"path,omitempty"`
}

// Tools overrides external tool paths.
type Tools struct {
	Objcopy string `yaml:"objcopy,omitempty"`
}

// Default returns the profile with every optional field set to its default.
func Default() Profile {
	return Profile{
		BuildTarget:      edk2.DefaultBuildTarget,
		Toolchain:        edk2.DefaultToolchain,
		Arch:             edk2.ArchIA32,
		ImageID:          DefaultImageID,
		BootParamsPolicy: bootparams.DefaultPolicy,
		ModuleReport:     pointer.To(true),
	}
}

// Load reads a YAML profile on top of Default.
func Load(r io.Reader) (Profile, error) {
	p := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("error decoding profile: %w", err)
	}

	defines, err := upperDefines(p.Defines)
	if err != nil {
		return Profile{}, err
	}

	p.Defines = defines

	return p, nil
}

// upperDefines upper-cases define names the same way ParseDefine does for flags.
func upperDefines(defines argsbuilder.Args) (argsbuilder.Args, error) {
	if defines == nil {
		return nil, nil
	}

	out := make(argsbuilder.Args, len(defines))

	for key, value := range defines {
		upper := strings.ToUpper(key)

		if out.Contains(upper) {
			return nil, fmt.Errorf("define %q is set more than once", upper)
		}

		out.Set(upper, value)
	}

	return out, nil
}

// Absolute resolves every relative path of the profile against the current directory.
//
// External tools run in the workspace, so a relative path would otherwise name
// a different file for them. An objcopy name without a slash is looked up in PATH
// and left as is.
func (p *Profile) Absolute() error {
	for _, path := range []*string{&p.Workspace, &p.Input.Kernel, &p.Input.Initramfs, &p.Output.Path} {
		if *path == "" {
			continue
		}

		abs, err := filepath.Abs(*path)
		if err != nil {
			return err
		}

		*path = abs
	}

	if strings.ContainsRune(p.Tools.Objcopy, filepath.Separator) || strings.Contains(p.Tools.Objcopy, "/") {
		abs, err := filepath.Abs(p.Tools.Objcopy)
		if err != nil {
			return err
		}

		p.Tools.Objcopy = abs
	}

	return nil
}

// Dump the profile as YAML.
func (p *Profile) Dump(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	return encoder.Encode(p)
}

// ModuleReportEnabled dereferences ModuleReport.
func (p *Profile) ModuleReportEnabled() bool {
	return pointer.SafeDeref(p.ModuleReport)
}

// Validate the profile.
//
//nolint:gocyclo
func (p *Profile) Validate() error {
	var result *multierror.Error

	if p.Workspace == "" {
		result = multierror.Append(result, errors.New("workspace is required (set WORKSPACE or --workspace)"))
	}

	if p.Input.Kernel == "" {
		result = multierror.Append(result, errors.New("kernel path is required"))
	}

	if p.BuildTarget == "" {
		result = multierror.Append(result, errors.New("build target is required"))
	}

	if p.Toolchain == "" {
		result = multierror.Append(result, errors.New("toolchain is required"))
	}

	if _, err := edk2.BFDTarget(p.Arch); err != nil {
		result = multierror.Append(result, err)
	}

	if _, err := bootparams.PolicyByName(p.BootParamsPolicy); err != nil {
		result = multierror.Append(result, err)
	}

	for key := range p.Defines {
		if key == "" || strings.Contains(key, "=") || key != strings.ToUpper(key) {
			result = multierror.Append(result, fmt.Errorf("invalid define name %q", key))
		}
	}

	return result.ErrorOrNil()
}

// BuildDir is the EDK2 output directory of the payload platform.
func (p *Profile) BuildDir() string {
	return filepath.Join(p.Workspace, filepath.FromSlash(edk2.BuildDir))
}

// ScratchPath returns the path of an intermediate file in the build directory.
func (p *Profile) ScratchPath(name string) string {
	return filepath.Join(p.BuildDir(), name)
}

// OutputPath returns the path of the final payload.
func (p *Profile) OutputPath() string {
	if p.Output.Path != "" {
		return p.Output.Path
	}

	return p.ScratchPath(OutputFileName)
}

// Module returns the EDK2 build of the payload entry module.
func (p *Profile) Module() *edk2.Module {
	m := &edk2.Module{
		Platform:    edk2.Platform,
		BuildTarget: p.BuildTarget,
		Arch:        p.Arch,
		Module:      edk2.EntryModule,
		Toolchain:   p.Toolchain,
		Defines:     p.Defines,
	}

	if p.ModuleReportEnabled() {
		m.Report = p.ScratchPath(edk2.ReportName)
	}

	return m
}

// Sections returns the sections to embed, backed by the scratch files and the initramfs.
func (p *Profile) Sections() section.Spec {
	return section.NewSpec(section.Inputs{
		Info:       p.ScratchPath(InfoFileName),
		Linux:      p.ScratchPath(VmLinuxFileName),
		BootParams: p.ScratchPath(BootParamsFileName),
		Initramfs:  p.Input.Initramfs,
	})
}
