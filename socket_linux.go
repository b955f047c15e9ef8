// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux && !386

package xdptx

import (
	"errors"
	"fmt"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Socket is an AF_XDP socket handle.
//
// Socket covers what the TX path needs: mapping the TX ring and kicking the
// kernel. UMEM registration and binding are the caller's business; use
// [SocketFromFd] to adopt a socket configured elsewhere.
//
// Socket is not safe for concurrent use.
type Socket struct {
	fd     int
	owned  bool
	txMmap []byte
}

var _ TxWaker = (*Socket)(nil)

// NewSocket opens an AF_XDP socket.
func NewSocket() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_XDP): %w", err)
	}
	return &Socket{fd: fd, owned: true}, nil
}

// SocketFromFd wraps an existing AF_XDP socket. Close does not close fd.
func SocketFromFd(fd int) *Socket {
	return &Socket{fd: fd}
}

// Fd returns the socket file descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

// MapTxRing sizes the TX ring to size descriptors and maps it.
// Size must be a power of 2.
func (s *Socket) MapTxRing(size uint32) (*TxRing, error) {
	if s.txMmap != nil {
		return nil, errors.New("xdptx: TX ring already mapped")
	}
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("xdptx: TX ring size %d is not a power of 2", size)
	}

	if err := unix.SetsockoptInt(s.fd, unix.SOL_XDP, unix.XDP_TX_RING, int(size)); err != nil {
		return nil, fmt.Errorf("setsockopt(XDP_TX_RING): %w", err)
	}

	var off unix.XDPMmapOffsets
	offLen := uint32(unsafe.Sizeof(off))
	if _, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(s.fd), unix.SOL_XDP, unix.XDP_MMAP_OFFSETS,
		uintptr(unsafe.Pointer(&off)), uintptr(unsafe.Pointer(&offLen)), 0); errno != 0 {
		return nil, fmt.Errorf("getsockopt(XDP_MMAP_OFFSETS): %w", errno)
	}

	length := int(off.Tx.Desc) + int(size)*DescriptorSize
	region, err := unix.Mmap(s.fd, unix.XDP_PGOFF_TX_RING, length,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("mmap(TX ring): %w", err)
	}
	s.txMmap = region

	return newTxRingAt(region, off.Tx.Producer, off.Tx.Consumer, off.Tx.Flags, off.Tx.Desc, size), nil
}

// WakeTx asks the kernel to process the TX ring.
//
// AF_XDP treats a zero-length sendto as a doorbell. EAGAIN, EBUSY and
// ENOBUFS mean the kernel is already busy with the ring; ENETDOWN means the
// interface is down. Those are reported as success.
func (s *Socket) WakeTx() error {
	err := unix.Sendto(s.fd, nil, unix.MSG_DONTWAIT, nil)
	switch err {
	case nil, unix.EAGAIN, unix.EBUSY, unix.ENOBUFS, unix.ENETDOWN:
		return nil
	}
	return fmt.Errorf("sendto(AF_XDP): %w", err)
}

// Close unmaps the TX ring and closes the socket if it was opened by
// [NewSocket]. A TX ring returned by MapTxRing must not be used afterwards.
func (s *Socket) Close() (err error) {
	if s.txMmap != nil {
		err = multierr.Append(err, unix.Munmap(s.txMmap))
		s.txMmap = nil
	}
	if s.owned && s.fd >= 0 {
		err = multierr.Append(err, unix.Close(s.fd))
		s.fd = -1
	}
	return err
}
