// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmdtest provides a cmd.Runner which records commands instead of running them.
package cmdtest

import (
	"context"
	"errors"

	"github.com/siderolabs/gen/xslices"

	"github.com/siderolabs/upld/pkg/cmd"
)

// Recorder is a cmd.Runner that records every invocation.
//
// Handler, when set, decides the result of each command.
type Recorder struct {
	Commands []cmd.Command
	Handler  func(c cmd.Command) (string, error)
}

// Run implements cmd.Runner.
func (r *Recorder) Run(_ context.Context, c cmd.Command) (string, error) {
	c.Args = append([]string(nil), c.Args...)

	r.Commands = append(r.Commands, c)

	if r.Handler != nil {
		return r.Handler(c)
	}

	return "", nil
}

// Names returns the names of the recorded commands in order.
func (r *Recorder) Names() []string {
	return xslices.Map(r.Commands, func(c cmd.Command) string { return c.Name })
}

// FailOn returns a handler which fails commands matching the predicate with ExitError.
func FailOn(match func(c cmd.Command) bool, output string) func(c cmd.Command) (string, error) {
	return func(c cmd.Command) (string, error) {
		if match(c) {
			return output, &cmd.ExitError{Command: c, Output: output, Err: errExitStatus}
		}

		return "", nil
	}
}

var errExitStatus = errors.New("exit status 1")
