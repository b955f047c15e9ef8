// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/xdptx"
)

func TestRingPair(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	rx, tx := xdptx.NewRingPair(4)
	require.EqualValues(4, tx.Cap())
	require.EqualValues(4, rx.Cap())

	// Grants never exceed the request
	assert.EqualValues(3, tx.Acquire(3))
	front, wrap := tx.Data()
	assert.Len(front, 3)
	assert.Len(wrap, 0)
	for i := range front {
		front[i] = xdptx.Descriptor{Address: uint64(i), Len: 60}
	}

	// Unreleased entries are invisible to the consumer
	assert.EqualValues(0, rx.Acquire(1))
	tx.Release(2)
	assert.EqualValues(2, rx.Acquire(1))

	// Only one free slot plus the unreleased one remain
	assert.EqualValues(2, tx.Acquire(4))
	tx.Release(1)

	// Cached view suffices for a low watermark; a higher one refreshes
	assert.EqualValues(2, rx.Acquire(1))
	assert.EqualValues(3, rx.Acquire(3))
	front, wrap = rx.Data()
	require.Len(front, 3)
	assert.Len(wrap, 0)
	assert.Equal([]uint64{0, 1, 2}, []uint64{front[0].Address, front[1].Address, front[2].Address})
	assert.EqualValues(60, front[2].Len)
	rx.Release(3)

	// Producer sees freed space once its request cannot be met from cache
	assert.EqualValues(4, tx.Acquire(4))
	front, wrap = tx.Data()
	assert.Len(front, 1)
	assert.Len(wrap, 3)
}

func TestRingNeedsWakeup(t *testing.T) {
	assert := assert.New(t)
	rx, tx := xdptx.NewRingPair(8)

	assert.False(tx.NeedsWakeup())
	rx.SetNeedsWakeup(true)
	assert.True(tx.NeedsWakeup())
	rx.SetNeedsWakeup(true)
	assert.True(tx.NeedsWakeup())
	rx.SetNeedsWakeup(false)
	assert.False(tx.NeedsWakeup())
}

func TestRingReleasePanics(t *testing.T) {
	rx, tx := xdptx.NewRingPair(4)

	tx.Acquire(2)
	assert.Panics(t, func() { tx.Release(3) })
	tx.Release(2)

	rx.Acquire(1)
	assert.Panics(t, func() { rx.Release(3) })
	assert.NotPanics(t, func() { rx.Release(0) })
}

func TestRingSizePanics(t *testing.T) {
	assert.Panics(t, func() { xdptx.NewRingPair(6) })
	assert.Panics(t, func() { xdptx.NewRingPair(1) })
}

func TestDescriptorLayout(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(16, xdptx.DescriptorSize)

	d := xdptx.Descriptor{Address: 4096, Len: 1, Options: 2}
	e := d.WithLen(1500)
	assert.EqualValues(1500, e.Len)
	assert.EqualValues(4096, e.Address)
	assert.EqualValues(2, e.Options)
	assert.EqualValues(1, d.Len)
}
