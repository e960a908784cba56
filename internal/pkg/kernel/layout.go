// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kernel

import (
	"encoding/binary"
	"fmt"
)

// HeaderRegionSize is the size of the boot_params page holding the x86 boot header.
const HeaderRegionSize = 4096

// Field describes a little-endian integer at a fixed offset of the boot_params page.
type Field struct {
	Name   string
	Offset int
	Width  int
}

// End returns the offset just past the field.
func (f Field) End() int {
	return f.Offset + f.Width
}

// Well-known boot_params fields.
//
// Offsets follow Documentation/arch/x86/zero-page.rst and boot.rst.
var (
	OrigVideoMode     = Field{Name: "orig_video_mode", Offset: 0x006, Width: 1}
	OrigVideoCols     = Field{Name: "orig_video_cols", Offset: 0x007, Width: 1}
	OrigVideoLines    = Field{Name: "orig_video_lines", Offset: 0x00e, Width: 1}
	OrigVideoIsVGA    = Field{Name: "orig_video_isVGA", Offset: 0x00f, Width: 1}
	OrigVideoPoints   = Field{Name: "orig_video_points", Offset: 0x010, Width: 2}
	SetupSects        = Field{Name: "setup_sects", Offset: 0x1f1, Width: 1}
	RootFlags         = Field{Name: "root_flags", Offset: 0x1f2, Width: 2}
	RootDev           = Field{Name: "root_dev", Offset: 0x1fc, Width: 2}
	LoaderType        = Field{Name: "loader_type", Offset: 0x210, Width: 1}
	KernelAlignment   = Field{Name: "kernel_alignment", Offset: 0x230, Width: 4}
	RelocatableKernel = Field{Name: "relocatable_kernel", Offset: 0x234, Width: 1}
	InitSize          = Field{Name: "init_size", Offset: 0x260, Width: 4}
)

// Layout lists every field this package knows about, ordered by offset.
var Layout = []Field{
	OrigVideoMode,
	OrigVideoCols,
	OrigVideoLines,
	OrigVideoIsVGA,
	OrigVideoPoints,
	SetupSects,
	RootFlags,
	RootDev,
	LoaderType,
	KernelAlignment,
	RelocatableKernel,
	InitSize,
}

func checkField(buf []byte, f Field) error {
	switch f.Width {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("field %s: unsupported width %d", f.Name, f.Width)
	}

	if f.Offset < 0 || f.End() > len(buf) {
		return fmt.Errorf("field %s at %#x+%d is outside of %d byte buffer", f.Name, f.Offset, f.Width, len(buf))
	}

	return nil
}

// ReadField reads the little-endian value of f from buf.
func ReadField(buf []byte, f Field) (uint64, error) {
	if err := checkField(buf, f); err != nil {
		return 0, err
	}

	b := buf[f.Offset:f.End()]

	switch f.Width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

// WriteField stores v as the little-endian value of f in buf.
//
// Values which do not fit into the field width are rejected.
func WriteField(buf []byte, f Field, v uint64) error {
	if err := checkField(buf, f); err != nil {
		return err
	}

	if f.Width < 8 && v>>(8*f.Width) != 0 {
		return fmt.Errorf("field %s: value %#x overflows %d bytes", f.Name, v, f.Width)
	}

	b := buf[f.Offset:f.End()]

	switch f.Width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}

	return nil
}
