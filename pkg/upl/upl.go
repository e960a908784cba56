// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package upl builds the Linux universal payload: an EDK2 entry module carrying
// the kernel, its boot params and an optional initramfs as ELF sections.
package upl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/siderolabs/upld/internal/pkg/bootparams"
	"github.com/siderolabs/upld/internal/pkg/edk2"
	"github.com/siderolabs/upld/internal/pkg/kernel"
	"github.com/siderolabs/upld/internal/pkg/section"
	"github.com/siderolabs/upld/internal/pkg/upldinfo"
	"github.com/siderolabs/upld/pkg/cmd"
	"github.com/siderolabs/upld/pkg/upl/profile"
	"github.com/siderolabs/upld/pkg/upl/utils"
)

var (
	// ErrMissingInput is returned when the kernel or the initramfs can't be found.
	ErrMissingInput = errors.New("missing input")
	// ErrToolUnavailable is returned when objcopy can't be executed.
	ErrToolUnavailable = errors.New("objcopy is not available, please check if LLVM is installed or if CLANG_BIN is set correctly")
)

// Builder runs the payload build pipeline.
type Builder struct {
	Profile profile.Profile
	Runner  cmd.Runner
	Logger  *zap.Logger

	stage Stage
}

// Stage returns the last reached stage.
func (b *Builder) Stage() Stage {
	return b.stage
}

func (b *Builder) transition(s Stage) {
	b.stage = s

	b.Logger.Info("stage reached", zap.Stringer("stage", s))
}

// payload is the in-memory result of the binary stages.
type payload struct {
	info    []byte
	params  []byte
	vmlinux []byte
}

// Build runs the pipeline and returns the path of the final payload.
//
// A failure stops the pipeline immediately, the entry module may be left with sections
// partially rewritten.
func (b *Builder) Build(ctx context.Context) (string, error) {
	if b.Logger == nil {
		b.Logger = zap.NewNop()
	}

	b.stage = StageInit

	output, err := b.build(ctx)
	if err != nil {
		if errors.Is(err, bootparams.ErrNonRelocatableKernel) {
			b.transition(StageValidationFailed)
		} else {
			b.transition(StageFailed)
		}

		return "", err
	}

	return output, nil
}

//nolint:gocyclo
func (b *Builder) build(ctx context.Context) (string, error) {
	prof := &b.Profile

	if err := prof.Absolute(); err != nil {
		return "", err
	}

	if err := checkInputs(prof.Input); err != nil {
		return "", err
	}

	if err := prof.Validate(); err != nil {
		return "", fmt.Errorf("invalid profile: %w", err)
	}

	p, err := b.buildPayload(prof)
	if err != nil {
		return "", err
	}

	bfdTarget, err := edk2.BFDTarget(prof.Arch)
	if err != nil {
		return "", err
	}

	asm := &section.Assembler{
		Runner:    b.Runner,
		Logger:    b.Logger,
		Objcopy:   prof.Tools.Objcopy,
		BFDTarget: bfdTarget,
		Dir:       prof.Workspace,
	}

	if _, err = asm.Probe(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolUnavailable, err)
	}

	b.transition(StageToolProbed)

	module := prof.Module()

	if err = module.Build(ctx, b.Runner, prof.Workspace); err != nil {
		return "", err
	}

	entry := module.OutputPath(prof.BuildDir())

	if _, err = os.Stat(entry); err != nil {
		return "", fmt.Errorf("entry module wasn't built: %w", err)
	}

	b.transition(StageModuleBuilt)

	if err = utils.CopyReader(b.Logger,
		utils.ReaderDestination(bytes.NewReader(p.info), prof.ScratchPath(profile.InfoFileName)),
		utils.ReaderDestination(bytes.NewReader(p.params), prof.ScratchPath(profile.BootParamsFileName)),
		utils.ReaderDestination(bytes.NewReader(p.vmlinux), prof.ScratchPath(profile.VmLinuxFileName)),
	); err != nil {
		return "", err
	}

	if err = asm.Assemble(ctx, entry, prof.Sections(), func(s section.Step) {
		switch s {
		case section.StepStripped:
			b.transition(StageSectionsStripped)
		case section.StepAdded:
			b.transition(StageSectionsAdded)
		case section.StepAligned:
			b.transition(StageSectionsAligned)
		}
	}); err != nil {
		return "", err
	}

	output := prof.OutputPath()

	if err = asm.Finalize(entry, output); err != nil {
		return "", err
	}

	b.transition(StageArtifactFinalized)

	return output, nil
}

// buildPayload runs the stages which don't spawn any process.
func (b *Builder) buildPayload(prof *profile.Profile) (*payload, error) {
	raw, err := os.ReadFile(prof.Input.Kernel)
	if err != nil {
		return nil, fmt.Errorf("error reading kernel: %w", err)
	}

	hdr, err := kernel.Parse(raw)
	if err != nil {
		return nil, err
	}

	b.Logger.Debug("parsed kernel header",
		zap.Uint8("setup_sects", hdr.SetupSects),
		zap.Uint32("kernel_alignment", hdr.KernelAlignment),
		zap.Uint8("relocatable_kernel", hdr.RelocatableKernel),
		zap.Uint32("init_size", hdr.InitSize),
	)

	b.transition(StageHeaderParsed)

	info := upldinfo.New(prof.ImageID)

	infoBytes, err := info.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b.transition(StageInfoBuilt)

	policy, err := bootparams.PolicyByName(prof.BootParamsPolicy)
	if err != nil {
		return nil, err
	}

	params, err := bootparams.Projector{Policy: policy}.Project(hdr)
	if err != nil {
		return nil, err
	}

	paramsBytes, err := params.MarshalBinary()
	if err != nil {
		return nil, err
	}

	vmlinux, err := hdr.StripSetup(raw)
	if err != nil {
		return nil, err
	}

	b.Logger.Info("built boot params",
		zap.String("policy", policy.Name()),
		zap.String("image_id", info.ImageIDString()),
		zap.String("kernel", humanize.IBytes(uint64(len(vmlinux)))),
	)

	b.transition(StageParamsBuilt)

	return &payload{
		info:    infoBytes,
		params:  paramsBytes,
		vmlinux: vmlinux,
	}, nil
}

func checkInputs(in profile.Input) error {
	if _, err := os.Stat(in.Kernel); err != nil {
		return fmt.Errorf("%w: can not find linux kernel %q: %w", ErrMissingInput, in.Kernel, err)
	}

	if in.Initramfs == "" {
		return nil
	}

	if _, err := os.Stat(in.Initramfs); err != nil {
		return fmt.Errorf("%w: can not find initramfs %q: %w", ErrMissingInput, in.Initramfs, err)
	}

	return nil
}
