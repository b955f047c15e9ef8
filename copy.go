// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

// VectoredCopy copies elements from the segments of from into the segments
// of to, in order, crossing segment boundaries on both sides.
//
// It copies min(total length of from, total length of to) elements and
// returns that count. Empty segments are skipped. Each contiguous overlap is
// moved with a single built-in copy.
//
// Example (wrapped queue into wrapped ring):
//
//	front, wrap := slice.Peek()
//	txFront, txWrap := tx.Data()
//	n := xdptx.VectoredCopy([][]Descriptor{front, wrap}, [][]Descriptor{txFront, txWrap})
func VectoredCopy[T any](from, to [][]T) int {
	var src, dst []T
	count := 0
	for {
		for len(src) == 0 {
			if len(from) == 0 {
				return count
			}
			src, from = from[0], from[1:]
		}
		for len(dst) == 0 {
			if len(to) == 0 {
				return count
			}
			dst, to = to[0], to[1:]
		}

		n := copy(dst, src)
		count += n
		src = src[n:]
		dst = dst[n:]
	}
}
