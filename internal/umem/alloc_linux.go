// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package umem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// alloc maps anonymous page-backed memory, as AF_XDP requires page-aligned UMEM.
func alloc(n int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("umem: mmap %d bytes: %w", n, err)
	}
	return mem, nil
}

func free(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}
