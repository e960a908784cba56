// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package upl

import (
	"errors"

	"github.com/siderolabs/upld/internal/pkg/bootparams"
	"github.com/siderolabs/upld/internal/pkg/kernel"
)

// Inspection describes a kernel image as seen by the payload builder.
type Inspection struct {
	Header *kernel.Header `yaml:"header"`

	SetupSize         int  `yaml:"setupSize"`
	ProtectedModeSize int  `yaml:"protectedModeSize"`
	Relocatable       bool `yaml:"relocatable"`
}

// Inspect parses the boot header of a raw kernel image.
func Inspect(raw []byte) (*Inspection, error) {
	hdr, err := kernel.Parse(raw)
	if err != nil {
		return nil, err
	}

	vmlinux, err := hdr.StripSetup(raw)
	if err != nil {
		return nil, err
	}

	policy, err := bootparams.PolicyByName(bootparams.DefaultPolicy)
	if err != nil {
		return nil, err
	}

	validateErr := policy.Validate(hdr)
	if validateErr != nil && !errors.Is(validateErr, bootparams.ErrNonRelocatableKernel) {
		return nil, validateErr
	}

	return &Inspection{
		Header:            hdr,
		SetupSize:         hdr.SetupSize(),
		ProtectedModeSize: len(vmlinux),
		Relocatable:       validateErr == nil,
	}, nil
}
