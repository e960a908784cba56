// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package kernel_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/upld/internal/pkg/kernel"
)

func TestLayout(t *testing.T) {
	t.Parallel()

	assert.True(t, sort.SliceIsSorted(kernel.Layout, func(i, j int) bool {
		return kernel.Layout[i].Offset < kernel.Layout[j].Offset
	}))

	for i, f := range kernel.Layout {
		assert.LessOrEqual(t, f.End(), kernel.HeaderRegionSize, f.Name)

		if i > 0 {
			assert.LessOrEqual(t, kernel.Layout[i-1].End(), f.Offset, "%s overlaps %s", f.Name, kernel.Layout[i-1].Name)
		}
	}

	for _, test := range []struct {
		field  kernel.Field
		offset int
		width  int
	}{
		{kernel.SetupSects, 0x1f1, 1},
		{kernel.RootFlags, 0x1f2, 2},
		{kernel.RootDev, 0x1fc, 2},
		{kernel.LoaderType, 0x210, 1},
		{kernel.KernelAlignment, 0x230, 4},
		{kernel.RelocatableKernel, 0x234, 1},
		{kernel.InitSize, 0x260, 4},
		{kernel.OrigVideoMode, 0x6, 1},
		{kernel.OrigVideoPoints, 0x10, 2},
	} {
		assert.Equal(t, test.offset, test.field.Offset, test.field.Name)
		assert.Equal(t, test.width, test.field.Width, test.field.Name)
	}
}

func TestReadWriteField(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 16)

	f := kernel.Field{Name: "test", Offset: 3, Width: 4}

	require.NoError(t, kernel.WriteField(buf, f, 0xdeadbeef))
	assert.Equal(t, []byte{0, 0, 0, 0xef, 0xbe, 0xad, 0xde, 0, 0, 0, 0, 0, 0, 0, 0, 0}, buf)

	v, err := kernel.ReadField(buf, f)
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, v)

	require.Error(t, kernel.WriteField(buf, kernel.Field{Name: "narrow", Offset: 0, Width: 1}, 0x100))
	require.Error(t, kernel.WriteField(buf, kernel.Field{Name: "odd", Offset: 0, Width: 3}, 1))

	_, err = kernel.ReadField(buf, kernel.Field{Name: "outside", Offset: 14, Width: 4})
	require.Error(t, err)

	_, err = kernel.ReadField(buf, kernel.Field{Name: "negative", Offset: -1, Width: 1})
	require.Error(t, err)
}
