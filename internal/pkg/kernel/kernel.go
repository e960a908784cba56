// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package kernel reads the x86 Linux boot header embedded in a kernel image.
package kernel

import (
	"errors"
	"fmt"
)

// SectorSize is the size of a real-mode setup sector.
const SectorSize = 512

// legacySetupSects is the setup sector count implied by setup_sects == 0.
const legacySetupSects = 4

// ErrMalformedHeader is returned when the kernel image can't hold a boot header.
var ErrMalformedHeader = errors.New("malformed kernel image")

// Header is the subset of the boot header consumed by the payload loader.
type Header struct {
	SetupSects        uint8  `yaml:"setupSects"`
	RootFlags         uint16 `yaml:"rootFlags"`
	RootDev           uint16 `yaml:"rootDev"`
	KernelAlignment   uint32 `yaml:"kernelAlignment"`
	RelocatableKernel uint8  `yaml:"relocatableKernel"`
	InitSize          uint32 `yaml:"initSize"`

	OrigVideoMode   uint8  `yaml:"origVideoMode"`
	OrigVideoCols   uint8  `yaml:"origVideoCols"`
	OrigVideoLines  uint8  `yaml:"origVideoLines"`
	OrigVideoIsVGA  uint8  `yaml:"origVideoIsVGA"`
	OrigVideoPoints uint16 `yaml:"origVideoPoints"`
	LoaderType      uint8  `yaml:"loaderType"`
}

// Parse extracts the boot header from the start of a raw kernel image.
func Parse(raw []byte) (*Header, error) {
	if len(raw) < HeaderRegionSize {
		return nil, fmt.Errorf("%w: image is %d bytes, boot header needs %d", ErrMalformedHeader, len(raw), HeaderRegionSize)
	}

	hdr := &Header{}

	for _, target := range []struct {
		field Field
		set   func(uint64)
	}{
		{SetupSects, func(v uint64) { hdr.SetupSects = uint8(v) }},
		{RootFlags, func(v uint64) { hdr.RootFlags = uint16(v) }},
		{RootDev, func(v uint64) { hdr.RootDev = uint16(v) }},
		{KernelAlignment, func(v uint64) { hdr.KernelAlignment = uint32(v) }},
		{RelocatableKernel, func(v uint64) { hdr.RelocatableKernel = uint8(v) }},
		{InitSize, func(v uint64) { hdr.InitSize = uint32(v) }},
		{OrigVideoMode, func(v uint64) { hdr.OrigVideoMode = uint8(v) }},
		{OrigVideoCols, func(v uint64) { hdr.OrigVideoCols = uint8(v) }},
		{OrigVideoLines, func(v uint64) { hdr.OrigVideoLines = uint8(v) }},
		{OrigVideoIsVGA, func(v uint64) { hdr.OrigVideoIsVGA = uint8(v) }},
		{OrigVideoPoints, func(v uint64) { hdr.OrigVideoPoints = uint16(v) }},
		{LoaderType, func(v uint64) { hdr.LoaderType = uint8(v) }},
	} {
		v, err := ReadField(raw, target.field)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
		}

		target.set(v)
	}

	return hdr, nil
}

// SetupSize returns the number of bytes preceding the protected-mode kernel.
func (hdr *Header) SetupSize() int {
	return SetupSize(hdr.SetupSects)
}

// SetupSize returns the size of the setup area for the given setup_sects value.
//
// The boot sector adds one sector to setup_sects; the legacy value 0 yields 4 sectors in total.
func SetupSize(setupSects uint8) int {
	if setupSects == 0 {
		return legacySetupSects * SectorSize
	}

	return (int(setupSects) + 1) * SectorSize
}

// StripSetup returns the protected-mode kernel image, i.e. raw without the setup area.
//
// The returned slice shares memory with raw.
func (hdr *Header) StripSetup(raw []byte) ([]byte, error) {
	setupSize := hdr.SetupSize()

	if len(raw) < setupSize {
		return nil, fmt.Errorf("%w: image is %d bytes, setup area is %d", ErrMalformedHeader, len(raw), setupSize)
	}

	return raw[setupSize:], nil
}
