// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package upldinfo builds the Universal Payload information header (.upld_info section).
package upldinfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Fixed header values.
const (
	Identifier   = "UPLD"
	SpecRevision = 0x0075
	Revision     = 0x0000010105
	ProducerID   = "INTEL"
)

// ImageIDSize is the size of the ImageID field.
const ImageIDSize = 16

// Info is the UNIVERSAL_PAYLOAD_INFO_HEADER structure.
//
// Field order and widths match the packed little-endian on-disk layout.
type Info struct {
	Identifier   [4]byte
	HeaderLength uint32
	SpecRevision uint16
	Reserved     uint16
	Revision     uint32
	Attribute    uint32
	Capability   uint32
	ProducerID   [16]byte
	ImageID      [ImageIDSize]byte
}

// Size is the encoded size of Info.
var Size = binary.Size(Info{})

// New returns the header for the given image identifier.
//
// The identifier is truncated to 16 bytes and zero padded.
func New(imageID string) Info {
	info := Info{
		SpecRevision: SpecRevision,
		Revision:     Revision,
	}

	copy(info.Identifier[:], Identifier)
	copy(info.ProducerID[:], ProducerID)
	copy(info.ImageID[:], imageID)

	info.HeaderLength = uint32(Size)

	return info
}

// ImageIDString returns ImageID without the zero padding.
func (info *Info) ImageIDString() string {
	return string(bytes.TrimRight(info.ImageID[:], "\x00"))
}

// MarshalBinary implements encoding.BinaryMarshaler.
//
// HeaderLength always reflects the encoded size.
func (info *Info) MarshalBinary() ([]byte, error) {
	out := *info
	out.HeaderLength = uint32(Size)

	var buf bytes.Buffer

	buf.Grow(Size)

	if err := binary.Write(&buf, binary.LittleEndian, &out); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (info *Info) UnmarshalBinary(data []byte) error {
	if len(data) < Size {
		return fmt.Errorf("payload info header is %d bytes, expected %d", len(data), Size)
	}

	var out Info

	if err := binary.Read(bytes.NewReader(data[:Size]), binary.LittleEndian, &out); err != nil {
		return err
	}

	if string(out.Identifier[:]) != Identifier {
		return fmt.Errorf("unexpected payload info identifier %q", out.Identifier[:])
	}

	if out.HeaderLength != uint32(Size) {
		return errors.New("payload info header length mismatch")
	}

	*info = out

	return nil
}
