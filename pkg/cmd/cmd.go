// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd runs external tools.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/armon/circbuf"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/upld/pkg/logging"
)

// MaxOutputLen is maximum length of output captured for error message.
const MaxOutputLen = 4096

// Command is a single external tool invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory, empty means the current one.
	Dir string
}

// String returns the command line in a copy-pasteable form.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)

	for _, s := range append([]string{c.Name}, c.Args...) {
		if s == "" || strings.ContainsAny(s, " \t\n\"'\\$") {
			s = strconv.Quote(s)
		}

		parts = append(parts, s)
	}

	return strings.Join(parts, " ")
}

// Runner executes commands synchronously.
type Runner interface {
	// Run waits for the command to exit and returns its combined output.
	Run(ctx context.Context, c Command) (string, error)
}

// ExitError is returned when a command can't be started or exits with non-zero status.
type ExitError struct {
	Command Command
	Output  string
	Err     error
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("error running %s: %s: %s", e.Command, e.Err, e.Output)
}

// Unwrap returns the underlying exec error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
//
// Output is kept (last MaxOutputLen bytes) for the error and forwarded line by line to Logger.
type ExecRunner struct {
	Logger *zap.Logger
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (string, error) {
	output, err := circbuf.NewBuffer(MaxOutputLen)
	if err != nil {
		return "", err
	}

	var w io.Writer = output

	if r.Logger != nil {
		r.Logger.Info("running command", zap.Stringer("command", c), zap.String("dir", c.Dir))

		lw := logging.NewWriter(r.Logger.With(zap.String("tool", c.Name)), zapcore.InfoLevel)
		defer lw.Flush()

		w = io.MultiWriter(output, lw)
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = w
	cmd.Stderr = w

	if err = cmd.Run(); err != nil {
		return output.String(), &ExitError{
			Command: c,
			Output:  output.String(),
			Err:     err,
		}
	}

	return output.String(), nil
}
