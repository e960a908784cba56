// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bootparams projects the kernel boot header into the .upld.bootparams section.
package bootparams

import (
	"fmt"

	"github.com/siderolabs/upld/internal/pkg/kernel"
)

// Size is the size of the encoded boot_params page.
const Size = kernel.HeaderRegionSize

// BootParams is the populated subset of the Linux boot_params page.
//
// Every byte not covered by a field is zero in the encoded form.
type BootParams struct {
	RootFlags         uint16
	RootDev           uint16
	KernelAlignment   uint32
	RelocatableKernel uint8
	InitSize          uint32

	OrigVideoMode   uint8
	OrigVideoCols   uint8
	OrigVideoLines  uint8
	OrigVideoIsVGA  uint8
	OrigVideoPoints uint16
	LoaderType      uint8
}

type fieldRef struct {
	field kernel.Field
	get   func() uint64
	set   func(uint64)
}

func (p *BootParams) fields() []fieldRef {
	return []fieldRef{
		{kernel.RootFlags, func() uint64 { return uint64(p.RootFlags) }, func(v uint64) { p.RootFlags = uint16(v) }},
		{kernel.RootDev, func() uint64 { return uint64(p.RootDev) }, func(v uint64) { p.RootDev = uint16(v) }},
		{kernel.KernelAlignment, func() uint64 { return uint64(p.KernelAlignment) }, func(v uint64) { p.KernelAlignment = uint32(v) }},
		{kernel.RelocatableKernel, func() uint64 { return uint64(p.RelocatableKernel) }, func(v uint64) { p.RelocatableKernel = uint8(v) }},
		{kernel.InitSize, func() uint64 { return uint64(p.InitSize) }, func(v uint64) { p.InitSize = uint32(v) }},
		{kernel.OrigVideoMode, func() uint64 { return uint64(p.OrigVideoMode) }, func(v uint64) { p.OrigVideoMode = uint8(v) }},
		{kernel.OrigVideoCols, func() uint64 { return uint64(p.OrigVideoCols) }, func(v uint64) { p.OrigVideoCols = uint8(v) }},
		{kernel.OrigVideoLines, func() uint64 { return uint64(p.OrigVideoLines) }, func(v uint64) { p.OrigVideoLines = uint8(v) }},
		{kernel.OrigVideoIsVGA, func() uint64 { return uint64(p.OrigVideoIsVGA) }, func(v uint64) { p.OrigVideoIsVGA = uint8(v) }},
		{kernel.OrigVideoPoints, func() uint64 { return uint64(p.OrigVideoPoints) }, func(v uint64) { p.OrigVideoPoints = uint16(v) }},
		{kernel.LoaderType, func() uint64 { return uint64(p.LoaderType) }, func(v uint64) { p.LoaderType = uint8(v) }},
	}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *BootParams) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)

	for _, f := range p.fields() {
		if err := kernel.WriteField(buf, f.field, f.get()); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *BootParams) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("boot params are %d bytes, expected %d", len(data), Size)
	}

	var out BootParams

	for _, f := range out.fields() {
		v, err := kernel.ReadField(data, f.field)
		if err != nil {
			return err
		}

		f.set(v)
	}

	*p = out

	return nil
}
