// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package version defines version information.
package version

import (
	"fmt"
	"io"
	"regexp"
	"runtime"
	"text/template"
)

var (
	// Name is set at build time.
	Name = "upld"
	// Tag is set at build time.
	Tag = "v0.0.0-dev"
	// SHA is set at build time.
	SHA = "undefined"
	// Built is set at build time.
	Built string
)

// Info is the verbose version information.
type Info struct {
	Tag       string
	SHA       string
	Built     string
	GoVersion string
	OS        string
	Arch      string
}

const versionTemplate = `	Tag:         {{ .Tag }}
	SHA:         {{ .SHA }}
	Built:       {{ .Built }}
	Go version:  {{ .GoVersion }}
	OS/Arch:     {{ .OS }}/{{ .Arch }}
`

// New returns the version information of the running binary.
func New() Info {
	return Info{
		Tag:       Tag,
		SHA:       SHA,
		Built:     Built,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// WriteLong writes verbose version information to w.
func WriteLong(w io.Writer, v Info) error {
	tmpl, err := template.New("version").Parse(versionTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, v)
}

// Short returns the short version string consist of name and tag.
func Short() string {
	return fmt.Sprintf("%s %s", Name, Tag)
}

var trimRe = regexp.MustCompile(`(-\d+(-g[0-9a-f]+)?(-dirty)?)$`)

// Trim removes anything extra after semantic version core, `v0.3.2-1-abcd` -> `v0.3.2`.
func Trim(version string) string {
	return trimRe.ReplaceAllString(version, "")
}
