// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package umem

func alloc(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func free(mem []byte) error {
	return nil
}
