// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package section describes the payload sections embedded into the entry ELF.
package section

import (
	"errors"
	"fmt"
	"math/bits"
)

// Name is a name of an ELF section of the payload entry module.
type Name string

// List of well-known section names.
const (
	Info       Name = ".upld_info"
	Linux      Name = ".upld.linux"
	BootParams Name = ".upld.bootparams"
	Initramfs  Name = ".upld.initramfs"
	UEFIFV     Name = ".upld.uefi.fv"
)

// DefaultAlignment is the alignment of every payload section.
const DefaultAlignment = 16

// Reserved returns the section names removed before the payload sections are added.
//
// UEFIFV is never added, it is stripped so that a stale firmware volume doesn't survive.
func Reserved() []Name {
	// DO NOT REARRANGE
	return []Name{Info, Linux, UEFIFV, Initramfs, BootParams}
}

// Section is a single section to be added from a file.
type Section struct {
	Name      Name
	Path      string
	Alignment uint64
}

// Spec is the ordered list of sections to embed.
type Spec []Section

// Inputs are the files backing the payload sections.
//
// Initramfs is optional.
type Inputs struct {
	Info       string
	Linux      string
	BootParams string
	Initramfs  string
}

// NewSpec returns the ordered section list for the inputs.
func NewSpec(in Inputs) Spec {
	spec := Spec{
		{Name: Info, Path: in.Info, Alignment: DefaultAlignment},
		{Name: Linux, Path: in.Linux, Alignment: DefaultAlignment},
		{Name: BootParams, Path: in.BootParams, Alignment: DefaultAlignment},
	}

	if in.Initramfs != "" {
		spec = append(spec, Section{Name: Initramfs, Path: in.Initramfs, Alignment: DefaultAlignment})
	}

	return spec
}

// Names returns section names in order.
func (spec Spec) Names() []Name {
	names := make([]Name, 0, len(spec))

	for _, s := range spec {
		names = append(names, s.Name)
	}

	return names
}

// Validate checks that the spec is well-formed.
func (spec Spec) Validate() error {
	if len(spec) == 0 {
		return errors.New("no sections to add")
	}

	seen := make(map[Name]struct{}, len(spec))

	for _, s := range spec {
		switch {
		case s.Name == "":
			return errors.New("section name is empty")
		case s.Path == "":
			return fmt.Errorf("section %s: source path is empty", s.Name)
		case s.Alignment == 0 || bits.OnesCount64(s.Alignment) != 1:
			return fmt.Errorf("section %s: alignment %d is not a power of two", s.Name, s.Alignment)
		}

		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("section %s is listed twice", s.Name)
		}

		seen[s.Name] = struct{}{}
	}

	return nil
}
