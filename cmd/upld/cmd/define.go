// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"slices"
	"strings"

	"github.com/siderolabs/gen/maps"

	"github.com/siderolabs/upld/pkg/argsbuilder"
)

// Defines is a repeatable KEY=VALUE flag.
type Defines struct {
	args argsbuilder.Args
}

// Args returns the parsed defines.
func (d *Defines) Args() argsbuilder.Args {
	return d.args
}

// Set implements pflag.Value.
func (d *Defines) Set(value string) error {
	key, val, err := argsbuilder.ParseDefine(value)
	if err != nil {
		return err
	}

	if d.args == nil {
		d.args = argsbuilder.Args{}
	}

	d.args.Set(key, val)

	return nil
}

// String implements pflag.Value.
func (d *Defines) String() string {
	keys := maps.Keys(d.args)
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys))

	for _, key := range keys {
		pairs = append(pairs, key+"="+d.args[key])
	}

	return "[" + strings.Join(pairs, ",") + "]"
}

// Type implements pflag.Value.
func (d *Defines) Type() string {
	return "KEY=VALUE"
}
