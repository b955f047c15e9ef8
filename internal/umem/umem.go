// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package umem provides frame-addressed packet buffer memory.
//
// A Umem is one contiguous region split into equal frames. Descriptors
// refer to frames by byte offset, the way AF_XDP UMEM addresses do.
package umem

import (
	"errors"
	"fmt"
)

// Limits and defaults.
const (
	MinFrameSize     = 2048
	DefaultFrameSize = 4096
)

// ErrFrameAddress indicates an address outside the region or not on a frame boundary.
var ErrFrameAddress = errors.New("umem: invalid frame address")

// Umem is packet buffer memory split into frames.
type Umem struct {
	mem       []byte
	frameSize int
	frames    int
}

// New allocates frames*frameSize bytes.
// Frame size must be a power of 2 no smaller than MinFrameSize.
func New(frames, frameSize int) (*Umem, error) {
	if frames < 1 {
		return nil, fmt.Errorf("umem: frame count %d must be positive", frames)
	}
	if frameSize < MinFrameSize || frameSize&(frameSize-1) != 0 {
		return nil, fmt.Errorf("umem: frame size %d must be a power of 2 >= %d", frameSize, MinFrameSize)
	}

	mem, err := alloc(frames * frameSize)
	if err != nil {
		return nil, err
	}
	return &Umem{mem: mem, frameSize: frameSize, frames: frames}, nil
}

// Frames returns the number of frames.
func (u *Umem) Frames() int {
	return u.frames
}

// FrameSize returns the size of each frame.
func (u *Umem) FrameSize() int {
	return u.frameSize
}

// Bytes returns the whole region, e.g. for XDP_UMEM_REG.
func (u *Umem) Bytes() []byte {
	return u.mem
}

// Address returns the offset of frame i.
func (u *Umem) Address(i int) uint64 {
	return uint64(i%u.frames) * uint64(u.frameSize)
}

// Frame returns the full frame starting at addr.
func (u *Umem) Frame(addr uint64) ([]byte, error) {
	if addr%uint64(u.frameSize) != 0 || addr >= uint64(len(u.mem)) {
		return nil, fmt.Errorf("%w: %#x", ErrFrameAddress, addr)
	}
	return u.mem[addr : addr+uint64(u.frameSize) : addr+uint64(u.frameSize)], nil
}

// Close releases the memory. Frames must not be used afterwards.
func (u *Umem) Close() error {
	mem := u.mem
	u.mem = nil
	return free(mem)
}
