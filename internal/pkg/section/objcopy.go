// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package section

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"

	"github.com/siderolabs/upld/pkg/cmd"
	"github.com/siderolabs/upld/pkg/upl/utils"
)

// DefaultObjcopy is the objcopy binary looked up in PATH.
const DefaultObjcopy = "llvm-objcopy"

// BFD target names understood by llvm-objcopy.
const (
	BFDTargetIA32 = "elf32-i386"
	BFDTargetX64  = "elf64-x86-64"
)

// Step is a completed step of Assemble.
type Step int

// Assemble steps, in order.
const (
	StepStripped Step = iota
	StepAdded
	StepAligned
)

func formatArgs(bfdTarget string) []string {
	return []string{"-I", bfdTarget, "-O", bfdTarget}
}

// StripArgs returns the arguments removing every reserved section from target.
func StripArgs(bfdTarget, target string) []string {
	args := formatArgs(bfdTarget)

	for _, name := range Reserved() {
		args = append(args, "--remove-section", string(name))
	}

	return append(args, target)
}

// AddArgs returns the arguments adding the spec sections to target.
func AddArgs(bfdTarget, target string, spec Spec) []string {
	args := formatArgs(bfdTarget)

	for _, s := range spec {
		args = append(args, "--add-section", fmt.Sprintf("%s=%s", s.Name, s.Path))
	}

	return append(args, target)
}

// AlignArgs returns the arguments setting the alignment of the spec sections in target.
func AlignArgs(bfdTarget, target string, spec Spec) []string {
	args := formatArgs(bfdTarget)

	for _, s := range spec {
		args = append(args, "--set-section-alignment", fmt.Sprintf("%s=%d", s.Name, s.Alignment))
	}

	return append(args, target)
}

// Assembler edits the payload sections of an ELF file in place with llvm-objcopy.
type Assembler struct {
	Runner cmd.Runner
	Logger *zap.Logger

	// Objcopy is the path to llvm-objcopy, DefaultObjcopy if empty.
	Objcopy string
	// BFDTarget is the input and output object format.
	BFDTarget string
	// Dir is the working directory of every invocation.
	Dir string
}

func (a *Assembler) objcopy() string {
	if a.Objcopy == "" {
		return DefaultObjcopy
	}

	return a.Objcopy
}

func (a *Assembler) run(ctx context.Context, args []string) (string, error) {
	return a.Runner.Run(ctx, cmd.Command{Name: a.objcopy(), Args: args, Dir: a.Dir})
}

// Probe checks that objcopy can be executed and supports the required options.
func (a *Assembler) Probe(ctx context.Context) (Quirks, error) {
	out, err := a.run(ctx, []string{"--version"})
	if err != nil {
		return Quirks{}, err
	}

	q := ParseQuirks(out)

	a.Logger.Info("found objcopy", zap.String("path", a.objcopy()), zap.String("version", q.Version()))

	if !q.SupportsSetSectionAlignment() {
		return q, fmt.Errorf("%s version %s doesn't support --set-section-alignment, LLVM %s or later is required",
			a.objcopy(), q.Version(), minVersionSetSectionAlignment)
	}

	return q, nil
}

// Strip removes the reserved sections from target.
//
// Sections missing from target are ignored, so Strip is idempotent.
func (a *Assembler) Strip(ctx context.Context, target string) error {
	a.Logger.Info("removing payload sections", zap.Strings("sections", xslices.Map(Reserved(), nameString)))

	_, err := a.run(ctx, StripArgs(a.BFDTarget, target))

	return err
}

// Add adds the spec sections to target.
func (a *Assembler) Add(ctx context.Context, target string, spec Spec) error {
	for _, s := range spec {
		fields := []zap.Field{zap.String("section", string(s.Name)), zap.String("path", s.Path)}

		if st, err := os.Stat(s.Path); err == nil {
			fields = append(fields, zap.String("size", humanize.IBytes(uint64(st.Size()))))
		}

		a.Logger.Info("adding section", fields...)
	}

	_, err := a.run(ctx, AddArgs(a.BFDTarget, target, spec))

	return err
}

// Align sets the alignment of the spec sections in target.
func (a *Assembler) Align(ctx context.Context, target string, spec Spec) error {
	_, err := a.run(ctx, AlignArgs(a.BFDTarget, target, spec))

	return err
}

// Assemble runs Strip, Add and Align on target, stopping at the first failure.
//
// progress, if not nil, is called after each completed step.
func (a *Assembler) Assemble(ctx context.Context, target string, spec Spec, progress func(Step)) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	if progress == nil {
		progress = func(Step) {}
	}

	if err := a.Strip(ctx, target); err != nil {
		return fmt.Errorf("error removing sections: %w", err)
	}

	progress(StepStripped)

	if err := a.Add(ctx, target, spec); err != nil {
		return fmt.Errorf("error adding sections: %w", err)
	}

	progress(StepAdded)

	if err := a.Align(ctx, target, spec); err != nil {
		return fmt.Errorf("error aligning sections: %w", err)
	}

	progress(StepAligned)

	return nil
}

// Finalize copies the assembled target to its output path.
func (a *Assembler) Finalize(target, output string) error {
	return utils.CopyFiles(a.Logger, utils.SourceDestination(target, output))
}

func nameString(n Name) string {
	return string(n)
}
