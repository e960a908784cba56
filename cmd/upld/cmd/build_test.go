// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/upld/pkg/argsbuilder"
)

func parseBuildFlags(t *testing.T, env map[string]string, args ...string) (*pflag.FlagSet, *buildFlags) {
	t.Helper()

	var f buildFlags

	flags := pflag.NewFlagSet("build", pflag.ContinueOnError)
	addBuildFlags(flags, &f, func(key string) string { return env[key] })

	require.NoError(t, flags.Parse(args))

	return flags, &f
}

func TestBuildFlagsDefaults(t *testing.T) {
	t.Parallel()

	flags, f := parseBuildFlags(t, map[string]string{"WORKSPACE": "/edk2", "CLANG_BIN": "/opt/llvm/bin"},
		"--kernel", "/images/bzImage",
		"-D", "serial_driver=TRUE",
		"-D", "SMM_SUPPORT=FALSE",
	)

	prof, err := f.profile(flags, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/edk2"), prof.Workspace)
	assert.Equal(t, "DEBUG", prof.BuildTarget)
	assert.Equal(t, "CLANGDWARF", prof.Toolchain)
	assert.Equal(t, "IA32", prof.Arch)
	assert.Equal(t, "UEFI", prof.ImageID)
	assert.Equal(t, "extended", prof.BootParamsPolicy)
	assert.Equal(t, "/images/bzImage", prof.Input.Kernel)
	assert.Equal(t, filepath.Join("/opt/llvm/bin", "llvm-objcopy"), prof.Tools.Objcopy)
	assert.Equal(t, argsbuilder.Args{"SERIAL_DRIVER": "TRUE", "SMM_SUPPORT": "FALSE"}, prof.Defines)
	assert.Equal(t, "[SERIAL_DRIVER=TRUE,SMM_SUPPORT=FALSE]", f.Defines.String())
}

func TestBuildFlagsNoEnv(t *testing.T) {
	t.Parallel()

	flags, f := parseBuildFlags(t, nil, "-b", "RELEASE", "-a", "X64", "-i", "LINUX", "--boot-params-policy", "minimal")

	prof, err := f.profile(flags, nil)
	require.NoError(t, err)

	assert.Empty(t, prof.Workspace)
	assert.Equal(t, "llvm-objcopy", prof.Tools.Objcopy)
	assert.Equal(t, "RELEASE", prof.BuildTarget)
	assert.Equal(t, "X64", prof.Arch)
	assert.Equal(t, "LINUX", prof.ImageID)
	assert.Equal(t, "minimal", prof.BootParamsPolicy)
	assert.Nil(t, prof.Defines)
	assert.Error(t, prof.Validate())
}

func TestBuildFlagsInvalidDefine(t *testing.T) {
	t.Parallel()

	var f buildFlags

	flags := pflag.NewFlagSet("build", pflag.ContinueOnError)
	flags.SetOutput(&strings.Builder{})
	addBuildFlags(flags, &f, func(string) string { return "" })

	require.ErrorContains(t, flags.Parse([]string{"-D", "A=B=C"}), "expected KEY=VALUE")
}

func TestBuildFlagsProfile(t *testing.T) {
	t.Parallel()

	profilePath := filepath.Join(t.TempDir(), "profile.yaml")

	require.NoError(t, os.WriteFile(profilePath, []byte(`workspace: /from-profile
buildTarget: RELEASE
imageID: PROFILE
defines:
  SERIAL_DRIVER: "FALSE"
input:
  kernel: /images/bzImage
`), 0o644))

	flags, f := parseBuildFlags(t, map[string]string{"WORKSPACE": "/from-env", "CLANG_BIN": "/opt/llvm/bin"},
		"--profile", profilePath,
		"-i", "FLAG",
		"-D", "SERIAL_DRIVER=TRUE",
	)

	prof, err := f.profile(flags, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/from-profile"), prof.Workspace)
	assert.Equal(t, "RELEASE", prof.BuildTarget)
	assert.Equal(t, "FLAG", prof.ImageID)
	assert.Equal(t, "/images/bzImage", prof.Input.Kernel)
	assert.Equal(t, filepath.Join("/opt/llvm/bin", "llvm-objcopy"), prof.Tools.Objcopy)
	assert.Equal(t, "TRUE", prof.Defines.Get("SERIAL_DRIVER"))
	require.NoError(t, prof.Validate())
}

func TestBuildFlagsProfileStdin(t *testing.T) {
	t.Parallel()

	flags, f := parseBuildFlags(t, map[string]string{"WORKSPACE": "/from-env"}, "--profile", "-")

	prof, err := f.profile(flags, strings.NewReader("input:\n  kernel: /images/bzImage\n"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/from-env"), prof.Workspace)
	assert.Equal(t, "/images/bzImage", prof.Input.Kernel)

	_, err = f.profile(flags, strings.NewReader("bogus: true\n"))
	require.Error(t, err)
}
