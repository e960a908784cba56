// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootparams

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/siderolabs/upld/internal/pkg/kernel"
)

// ErrNonRelocatableKernel is returned for kernels which can't be loaded at an arbitrary address.
var ErrNonRelocatableKernel = errors.New("kernel is not relocatable")

// Legacy values the payload entry expects in the extended layout.
const (
	LegacyVideoMode   = 3
	LegacyVideoCols   = 80
	LegacyVideoLines  = 25
	LegacyVideoIsVGA  = 1
	LegacyVideoPoints = 16

	// LoaderTypeUndefined is the "no registered boot loader ID" value of loader_type.
	LoaderTypeUndefined = 0xff
)

// Policy decides which boot_params fields are populated and which kernels are accepted.
type Policy interface {
	// Name is the configuration name of the policy.
	Name() string
	// Validate checks loader preconditions on the kernel header.
	Validate(hdr *kernel.Header) error
	// Apply sets the policy specific constants.
	Apply(params *BootParams)
}

// Policy names.
const (
	PolicyMinimal  = "minimal"
	PolicyExtended = "extended"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = PolicyExtended

// Minimal populates only the root, kernel placement and relocation fields.
type Minimal struct{}

// Name implements Policy.
func (Minimal) Name() string { return PolicyMinimal }

// Validate implements Policy.
func (Minimal) Validate(hdr *kernel.Header) error {
	return requireRelocatable(hdr)
}

// Apply implements Policy.
func (Minimal) Apply(*BootParams) {}

// Extended additionally presets the legacy video mode and the loader type.
type Extended struct{}

// Name implements Policy.
func (Extended) Name() string { return PolicyExtended }

// Validate implements Policy.
func (Extended) Validate(hdr *kernel.Header) error {
	return requireRelocatable(hdr)
}

// Apply implements Policy.
func (Extended) Apply(params *BootParams) {
	params.OrigVideoMode = LegacyVideoMode
	params.OrigVideoCols = LegacyVideoCols
	params.OrigVideoLines = LegacyVideoLines
	params.OrigVideoIsVGA = LegacyVideoIsVGA
	params.OrigVideoPoints = LegacyVideoPoints
	params.LoaderType = LoaderTypeUndefined
}

// The payload entry allocates the kernel at an address of its choosing.
func requireRelocatable(hdr *kernel.Header) error {
	if hdr.RelocatableKernel == 0 {
		return fmt.Errorf("%w: relocatable_kernel is 0", ErrNonRelocatableKernel)
	}

	return nil
}

var policies = map[string]Policy{
	PolicyMinimal:  Minimal{},
	PolicyExtended: Extended{},
}

// Policies returns the names of the known policies.
func Policies() []string {
	names := make([]string, 0, len(policies))

	for name := range policies {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// PolicyByName looks up a policy, the empty name selects DefaultPolicy.
func PolicyByName(name string) (Policy, error) {
	if name == "" {
		name = DefaultPolicy
	}

	policy, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown boot params policy %q, expected one of: %s", name, strings.Join(Policies(), ", "))
	}

	return policy, nil
}
