// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cli contains helpers shared by the command line entrypoints.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

// WithContext wraps function call to provide a context cancellable with ^C.
//
// The first signal cancels the context, running tools are killed. The second one
// is handled by the default signal handler.
func WithContext(ctx context.Context, f func(context.Context) error) error {
	return withSignals(ctx, os.Stderr, f, os.Interrupt, syscall.SIGTERM)
}

func withSignals(ctx context.Context, notice io.Writer, f func(context.Context) error, signals ...os.Signal) error {
	wrappedCtx, wrappedCtxCancel := context.WithCancel(ctx)
	defer wrappedCtxCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	defer signal.Stop(sigCh)

	exited := make(chan struct{})
	defer close(exited)

	go func() {
		select {
		case <-sigCh:
			signal.Stop(sigCh)
			color.New(color.FgYellow).Fprintln(notice, "Signal received, aborting, press Ctrl+C once again to abort immediately...") //nolint:errcheck

			wrappedCtxCancel()
		case <-wrappedCtx.Done():
		case <-exited:
		}
	}()

	return f(wrappedCtx)
}

// Success prints a highlighted success message.
func Success(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, format+"\n", args...) //nolint:errcheck
}
