// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package utils provides file helpers for the payload pipeline.
//
//nolint:revive
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/siderolabs/gen/pair/ordered"
	"go.uber.org/zap"
)

// CopyInstruction describes a file copy operation.
type CopyInstruction = ordered.Pair[string, string]

// SourceDestination returns a CopyInstruction that copies src to dest.
func SourceDestination(src, dest string) CopyInstruction {
	return ordered.MakePair(src, dest)
}

// CopyFiles copies files according to the given instructions.
//
// Each destination is written to a temporary file in the same directory and renamed
// into place, so dest is either the old content or the complete new one. Permission
// bits are copied from the source.
func CopyFiles(logger *zap.Logger, instructions ...CopyInstruction) error {
	for _, instruction := range instructions {
		src, dest := instruction.F1, instruction.F2

		if err := func() error {
			from, err := os.Open(src)
			if err != nil {
				return err
			}
			//nolint:errcheck
			defer from.Close()

			st, err := from.Stat()
			if err != nil {
				return err
			}

			n, err := writeAtomic(dest, from, st.Mode().Perm())
			if err != nil {
				return err
			}

			logger.Info("copied file", zap.String("src", src), zap.String("dest", dest), zap.String("size", humanize.IBytes(uint64(n))))

			return nil
		}(); err != nil {
			return fmt.Errorf("error copying %s -> %s: %w", src, dest, err)
		}
	}

	return nil
}

// CopyReaderInstruction describes a reader copy operation.
type CopyReaderInstruction struct {
	Reader io.Reader
	Dest   string
}

// ReaderDestination returns a CopyReaderInstruction that copies reader to dest.
func ReaderDestination(reader io.Reader, dest string) CopyReaderInstruction {
	return CopyReaderInstruction{Reader: reader, Dest: dest}
}

// CopyReader copies readers according to the given instructions.
func CopyReader(logger *zap.Logger, instructions ...CopyReaderInstruction) error {
	for _, instruction := range instructions {
		n, err := writeAtomic(instruction.Dest, instruction.Reader, 0o644)
		if err != nil {
			return fmt.Errorf("error copying reader -> %s: %w", instruction.Dest, err)
		}

		logger.Debug("wrote file", zap.String("dest", instruction.Dest), zap.String("size", humanize.IBytes(uint64(n))))
	}

	return nil
}

func writeAtomic(dest string, r io.Reader, mode os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}

	to, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return 0, err
	}

	tmp := to.Name()

	n, err := io.Copy(to, r)
	if err == nil {
		err = to.Chmod(mode)
	}

	if closeErr := to.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Rename(tmp, dest)
	}

	if err != nil {
		os.Remove(tmp) //nolint:errcheck

		return 0, err
	}

	return n, nil
}
