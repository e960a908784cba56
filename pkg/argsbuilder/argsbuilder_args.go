// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package argsbuilder manages preprocessor style KEY=VALUE defines passed to the EDK2 build.
package argsbuilder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/siderolabs/gen/maps"
)

// Key represents a define name.
type Key = string

// Value represents a define value.
type Value = string

// Args represents a set of defines.
type Args map[Key]Value

// ParseDefine parses a KEY=VALUE define, the key is upper-cased.
func ParseDefine(s string) (Key, Value, error) {
	s = strings.TrimSpace(s)

	if strings.Count(s, "=") != 1 {
		return "", "", fmt.Errorf("unknown variable passed in: %q, expected KEY=VALUE", s)
	}

	key, value, _ := strings.Cut(s, "=")

	if key == "" {
		return "", "", fmt.Errorf("empty define name in %q", s)
	}

	return strings.ToUpper(key), value, nil
}

// Parse builds Args from a list of KEY=VALUE defines, later defines override earlier ones.
func Parse(defines []string) (Args, error) {
	args := Args{}

	for _, define := range defines {
		key, value, err := ParseDefine(define)
		if err != nil {
			return nil, err
		}

		args[key] = value
	}

	return args, nil
}

// Merge implements the ArgsBuilder interface.
//
//nolint:gocyclo
func (a Args) Merge(args Args, setters ...MergeOption) error {
	var opts MergeOptions

	for _, s := range setters {
		s(&opts)
	}

	policies := opts.Policies
	if policies == nil {
		policies = MergePolicies{}
	}

	for key, val := range args {
		policy := policies[key]

		switch policy {
		case MergeDenied:
			return NewDenylistError(key)
		case MergeAdditive:
			values := strings.Split(a[key], ",")
			definedValues := map[string]struct{}{}

			i := 0

			for _, v := range values {
				definedValues[strings.TrimSpace(v)] = struct{}{}

				if v != "" {
					values[i] = v
					i++
				}
			}

			values = values[:i]

			for _, v := range strings.Split(val, ",") {
				v = strings.TrimSpace(v)
				if _, defined := definedValues[v]; !defined {
					values = append(values, v)
				}
			}

			a[key] = strings.Join(values, ",")
		case MergeOverwrite:
			a[key] = val
		}
	}

	return nil
}

// Set implements the ArgsBuilder interface.
func (a Args) Set(k Key, v Value) ArgsBuilder {
	a[k] = v

	return a
}

// Defines implements the ArgsBuilder interface.
//
// Result is a "-D", "KEY=VALUE" pair per define, sorted by key.
func (a Args) Defines() []string {
	keys := maps.Keys(a)
	slices.Sort(keys)

	args := make([]string, 0, 2*len(a))

	for _, key := range keys {
		args = append(args, "-D", fmt.Sprintf("%s=%s", key, a[key]))
	}

	return args
}

// Get returns a define value.
func (a Args) Get(k Key) Value {
	return a[k]
}

// Contains checks if a define is set.
func (a Args) Contains(k Key) bool {
	_, ok := a[k]

	return ok
}

// DenyListError represents an error indicating that a define was supplied
// that is not allowed.
type DenyListError struct {
	s string
}

// NewDenylistError returns a DenyListError.
func NewDenylistError(s string) error {
	return &DenyListError{s}
}

// Error implements the Error interface.
func (b *DenyListError) Error() string {
	return fmt.Sprintf("define %q is not allowed", b.s)
}
