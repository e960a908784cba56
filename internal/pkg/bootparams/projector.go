// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootparams

import (
	"errors"

	"github.com/siderolabs/upld/internal/pkg/kernel"
)

// Projector builds BootParams from a kernel header using the configured Policy.
type Projector struct {
	Policy Policy
}

// Project validates hdr against the policy and returns the boot params to embed.
func (p Projector) Project(hdr *kernel.Header) (*BootParams, error) {
	if p.Policy == nil {
		return nil, errors.New("boot params policy is not set")
	}

	if err := p.Policy.Validate(hdr); err != nil {
		return nil, err
	}

	params := &BootParams{
		RootFlags:         hdr.RootFlags,
		RootDev:           hdr.RootDev,
		KernelAlignment:   hdr.KernelAlignment,
		RelocatableKernel: hdr.RelocatableKernel,
		InitSize:          hdr.InitSize,
	}

	p.Policy.Apply(params)

	return params, nil
}
