// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package upl_test

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/upld/internal/pkg/bootparams"
	"github.com/siderolabs/upld/internal/pkg/kernel"
	"github.com/siderolabs/upld/pkg/cmd"
	"github.com/siderolabs/upld/pkg/cmd/cmdtest"
	"github.com/siderolabs/upld/pkg/upl"
	"github.com/siderolabs/upld/pkg/upl/profile"
)

const testObjcopy = "/opt/llvm/bin/llvm-objcopy"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syntheticKernel returns a 16 KiB image with setup_sects=4.
func syntheticKernel(relocatable byte) []byte {
	raw := make([]byte, 16*1024)

	for i := range raw {
		raw[i] = byte(i * 7)
	}

	raw[kernel.SetupSects.Offset] = 4
	binary.LittleEndian.PutUint16(raw[kernel.RootFlags.Offset:], 0)
	binary.LittleEndian.PutUint16(raw[kernel.RootDev.Offset:], 0)
	binary.LittleEndian.PutUint32(raw[kernel.KernelAlignment.Offset:], 0x200000)
	raw[kernel.RelocatableKernel.Offset] = relocatable
	binary.LittleEndian.PutUint32(raw[kernel.InitSize.Offset:], 0x1000000)

	return raw
}

type BuilderSuite struct {
	suite.Suite

	workspace string
	kernel    []byte
	profile   profile.Profile
	recorder  *cmdtest.Recorder
}

func (suite *BuilderSuite) SetupTest() {
	suite.workspace = suite.T().TempDir()
	suite.kernel = syntheticKernel(1)

	kernelPath := filepath.Join(suite.T().TempDir(), "bzImage")
	suite.Require().NoError(os.WriteFile(kernelPath, suite.kernel, 0o644))

	suite.profile = profile.Default()
	suite.profile.Workspace = suite.workspace
	suite.profile.Input.Kernel = kernelPath
	suite.profile.Tools.Objcopy = testObjcopy

	suite.recorder = &cmdtest.Recorder{Handler: suite.fakeTools(nil)}
}

// fakeTools emulates llvm-objcopy and the EDK2 build, fail decides which commands fail.
func (suite *BuilderSuite) fakeTools(fail func(cmd.Command) bool) func(cmd.Command) (string, error) {
	failing := cmdtest.FailOn(func(c cmd.Command) bool { return fail != nil && fail(c) }, "tool failed")

	return func(c cmd.Command) (string, error) {
		if out, err := failing(c); err != nil {
			return out, err
		}

		switch {
		case c.Name == testObjcopy && slices.Equal(c.Args, []string{"--version"}):
			return "LLVM version 17.0.6\n", nil
		case c.Name == "build":
			entry := suite.profile.Module().OutputPath(suite.profile.BuildDir())

			suite.Require().NoError(os.MkdirAll(filepath.Dir(entry), 0o755))
			suite.Require().NoError(os.WriteFile(entry, []byte("\x7fELF entry"), 0o644))
		}

		return "", nil
	}
}

func (suite *BuilderSuite) builder() *upl.Builder {
	return &upl.Builder{
		Profile: suite.profile,
		Runner:  suite.recorder,
		Logger:  zaptest.NewLogger(suite.T()),
	}
}

func (suite *BuilderSuite) TestBuild() {
	b := suite.builder()

	output, err := b.Build(context.Background())
	suite.Require().NoError(err)

	suite.Assert().Equal(upl.StageArtifactFinalized, b.Stage())
	suite.Assert().Equal(filepath.Join(suite.workspace, "Build", "LinuxUefiPayloadPkg", "UniversalPayload.elf"), output)

	contents, err := os.ReadFile(output)
	suite.Require().NoError(err)
	suite.Assert().Equal([]byte("\x7fELF entry"), contents)

	info, err := os.ReadFile(suite.profile.ScratchPath(profile.InfoFileName))
	suite.Require().NoError(err)
	suite.Require().Len(info, 56)
	suite.Assert().Equal([]byte("UPLD"), info[0:4])
	suite.Assert().Equal(append([]byte("UEFI"), make([]byte, 12)...), info[40:56])

	params, err := os.ReadFile(suite.profile.ScratchPath(profile.BootParamsFileName))
	suite.Require().NoError(err)
	suite.Require().Len(params, 4096)
	suite.Assert().EqualValues(0x200000, binary.LittleEndian.Uint32(params[0x230:]))
	suite.Assert().EqualValues(1, params[0x234])
	suite.Assert().EqualValues(0x1000000, binary.LittleEndian.Uint32(params[0x260:]))
	suite.Assert().EqualValues(0xff, params[0x210])

	vmlinux, err := os.ReadFile(suite.profile.ScratchPath(profile.VmLinuxFileName))
	suite.Require().NoError(err)
	suite.Assert().Len(vmlinux, 16384-2560)
	suite.Assert().Equal(suite.kernel[2560:], vmlinux)

	suite.Assert().Equal([]string{testObjcopy, "build", testObjcopy, testObjcopy, testObjcopy}, suite.recorder.Names())

	for _, c := range suite.recorder.Commands {
		suite.Assert().Equal(suite.workspace, c.Dir)
	}

	entry := suite.profile.Module().OutputPath(suite.profile.BuildDir())
	add := suite.recorder.Commands[3].Args

	suite.Assert().Contains(add, ".upld_info="+suite.profile.ScratchPath(profile.InfoFileName))
	suite.Assert().Contains(add, ".upld.linux="+suite.profile.ScratchPath(profile.VmLinuxFileName))
	suite.Assert().Contains(add, ".upld.bootparams="+suite.profile.ScratchPath(profile.BootParamsFileName))
	suite.Assert().Len(add, 4+3*2+1)
	suite.Assert().Equal(entry, add[len(add)-1])
}

func (suite *BuilderSuite) TestBuildInitramfs() {
	initramfs := filepath.Join(suite.T().TempDir(), "initramfs.cpio")
	suite.Require().NoError(os.WriteFile(initramfs, []byte("070701"), 0o644))

	suite.profile.Input.Initramfs = initramfs
	suite.profile.Output.Path = filepath.Join(suite.T().TempDir(), "out", "payload.elf")

	output, err := suite.builder().Build(context.Background())
	suite.Require().NoError(err)
	suite.Assert().Equal(suite.profile.Output.Path, output)
	suite.Assert().FileExists(output)

	suite.Assert().Contains(suite.recorder.Commands[3].Args, ".upld.initramfs="+initramfs)
	suite.Assert().Contains(suite.recorder.Commands[4].Args, ".upld.initramfs=16")
}

func (suite *BuilderSuite) TestBuildRelativeInputs() {
	cwd := suite.T().TempDir()
	suite.T().Chdir(cwd)

	suite.Require().NoError(os.WriteFile(filepath.Join(cwd, "initrd.cpio"), []byte("070701"), 0o644))
	suite.Require().NoError(os.WriteFile(filepath.Join(cwd, "bzImage"), suite.kernel, 0o644))

	suite.profile.Input.Kernel = "bzImage"
	suite.profile.Input.Initramfs = "initrd.cpio"
	suite.profile.Output.Path = filepath.Join("out", "payload.elf")

	output, err := suite.builder().Build(context.Background())
	suite.Require().NoError(err)

	resolved, err := filepath.EvalSymlinks(cwd)
	suite.Require().NoError(err)

	outputDir, err := filepath.EvalSymlinks(filepath.Dir(output))
	suite.Require().NoError(err)
	suite.Assert().True(filepath.IsAbs(output))
	suite.Assert().Equal(filepath.Join(resolved, "out"), outputDir)

	add := suite.recorder.Commands[3]
	suite.Assert().Equal(suite.workspace, add.Dir)

	var initramfsArg string

	for _, arg := range add.Args {
		if name, path, ok := strings.Cut(arg, "="); ok && name == ".upld.initramfs" {
			initramfsArg = path
		}
	}

	suite.Require().True(filepath.IsAbs(initramfsArg), initramfsArg)
	suite.Assert().FileExists(initramfsArg)

	contents, err := os.ReadFile(initramfsArg)
	suite.Require().NoError(err)
	suite.Assert().Equal([]byte("070701"), contents)
}

func (suite *BuilderSuite) TestRebuild() {
	_, err := suite.builder().Build(context.Background())
	suite.Require().NoError(err)

	_, err = suite.builder().Build(context.Background())
	suite.Require().NoError(err)

	suite.Assert().Len(suite.recorder.Commands, 10)
	suite.Assert().Equal(suite.recorder.Commands[2], suite.recorder.Commands[7])
}

func (suite *BuilderSuite) TestNonRelocatable() {
	for _, policy := range bootparams.Policies() {
		suite.Run(policy, func() {
			suite.SetupTest()
			suite.Require().NoError(os.WriteFile(suite.profile.Input.Kernel, syntheticKernel(0), 0o644))

			suite.profile.BootParamsPolicy = policy

			b := suite.builder()

			_, err := b.Build(context.Background())
			suite.Require().ErrorIs(err, bootparams.ErrNonRelocatableKernel)

			suite.Assert().Equal(upl.StageValidationFailed, b.Stage())
			suite.Assert().Empty(suite.recorder.Commands)
			suite.Assert().NoFileExists(suite.profile.OutputPath())
		})
	}
}

func (suite *BuilderSuite) TestMissingKernel() {
	suite.profile.Input.Kernel = filepath.Join(suite.T().TempDir(), "missing")

	b := suite.builder()

	_, err := b.Build(context.Background())
	suite.Require().ErrorIs(err, upl.ErrMissingInput)
	suite.Assert().Equal(upl.StageFailed, b.Stage())
	suite.Assert().Empty(suite.recorder.Commands)

	suite.profile.Input.Kernel = ""

	_, err = suite.builder().Build(context.Background())
	suite.Require().ErrorIs(err, upl.ErrMissingInput)
}

func (suite *BuilderSuite) TestMissingInitramfs() {
	suite.profile.Input.Initramfs = filepath.Join(suite.T().TempDir(), "missing.cpio")

	_, err := suite.builder().Build(context.Background())
	suite.Require().ErrorIs(err, upl.ErrMissingInput)
	suite.Assert().Empty(suite.recorder.Commands)
}

func (suite *BuilderSuite) TestMalformedKernel() {
	suite.Require().NoError(os.WriteFile(suite.profile.Input.Kernel, make([]byte, 100), 0o644))

	_, err := suite.builder().Build(context.Background())
	suite.Require().ErrorIs(err, kernel.ErrMalformedHeader)
	suite.Assert().Empty(suite.recorder.Commands)
}

func (suite *BuilderSuite) TestToolUnavailable() {
	suite.recorder.Handler = suite.fakeTools(func(c cmd.Command) bool { return c.Name == testObjcopy })

	b := suite.builder()

	_, err := b.Build(context.Background())
	suite.Require().ErrorIs(err, upl.ErrToolUnavailable)

	var exitErr *cmd.ExitError

	suite.Require().ErrorAs(err, &exitErr)
	suite.Assert().Contains(err.Error(), "CLANG_BIN")
	suite.Assert().Equal(upl.StageFailed, b.Stage())
	suite.Assert().Len(suite.recorder.Commands, 1)
}

func (suite *BuilderSuite) TestExternalFailure() {
	for _, test := range []struct {
		name string
		fail func(cmd.Command) bool

		commands int
	}{
		{
			name:     "build",
			fail:     func(c cmd.Command) bool { return c.Name == "build" },
			commands: 2,
		},
		{
			name:     "strip",
			fail:     func(c cmd.Command) bool { return slices.Contains(c.Args, "--remove-section") },
			commands: 3,
		},
		{
			name:     "align",
			fail:     func(c cmd.Command) bool { return slices.Contains(c.Args, "--set-section-alignment") },
			commands: 5,
		},
	} {
		suite.Run(test.name, func() {
			suite.SetupTest()
			suite.recorder.Handler = suite.fakeTools(test.fail)

			b := suite.builder()

			_, err := b.Build(context.Background())

			var exitErr *cmd.ExitError

			suite.Require().ErrorAs(err, &exitErr)
			suite.Assert().Equal("tool failed", exitErr.Output)
			suite.Assert().Equal(upl.StageFailed, b.Stage())
			suite.Assert().Len(suite.recorder.Commands, test.commands)
			suite.Assert().NoFileExists(suite.profile.OutputPath())
		})
	}
}

func (suite *BuilderSuite) TestInvalidProfile() {
	suite.profile.Arch = "RISCV64"

	_, err := suite.builder().Build(context.Background())
	suite.Require().ErrorContains(err, "unsupported architecture")
	suite.Assert().Empty(suite.recorder.Commands)
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}
