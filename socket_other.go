// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux || 386

package xdptx

// Socket is an AF_XDP socket handle. It is supported on 64-bit and arm Linux only.
type Socket struct {
	fd int
}

var _ TxWaker = (*Socket)(nil)

// NewSocket returns ErrUnsupported.
func NewSocket() (*Socket, error) {
	return nil, ErrUnsupported
}

// SocketFromFd wraps fd. Every operation on the result fails.
func SocketFromFd(fd int) *Socket {
	return &Socket{fd: fd}
}

// Fd returns the socket file descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

// MapTxRing returns ErrUnsupported.
func (s *Socket) MapTxRing(size uint32) (*TxRing, error) {
	return nil, ErrUnsupported
}

// WakeTx returns ErrUnsupported.
func (s *Socket) WakeTx() error {
	return ErrUnsupported
}

// Close does nothing.
func (s *Socket) Close() error {
	return nil
}
