// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package section

import (
	"bufio"
	"strings"

	"github.com/blang/semver/v4"
)

// Quirks describes the capabilities of the probed objcopy.
type Quirks struct {
	v *semver.Version
}

// ParseQuirks extracts the LLVM version from `llvm-objcopy --version` output.
//
// Output without a recognizable version yields Quirks of the latest objcopy.
func ParseQuirks(versionOutput string) Quirks {
	scanner := bufio.NewScanner(strings.NewReader(versionOutput))

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())

		for i := 0; i+1 < len(fields); i++ {
			if fields[i] != "version" {
				continue
			}

			v, err := semver.ParseTolerant(fields[i+1])
			if err != nil {
				continue
			}

			return Quirks{v: &semver.Version{
				Major: v.Major,
				Minor: v.Minor,
				Patch: v.Patch,
			}}
		}
	}

	return Quirks{}
}

// Version returns the detected version, empty if unknown.
func (q Quirks) Version() string {
	if q.v == nil {
		return ""
	}

	return q.v.String()
}

var minVersionSetSectionAlignment = semver.MustParse("10.0.0")

// SupportsSetSectionAlignment returns true if objcopy understands --set-section-alignment.
func (q Quirks) SupportsSetSectionAlignment() bool {
	// if the version doesn't parse, we assume it's latest LLVM
	if q.v == nil {
		return true
	}

	return q.v.GTE(minVersionSetSectionAlignment)
}
