// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A memory-only implementation of Filer.

package block

import (
	"io"

	"github.com/cznic/mathutil"
)

var _ Filer = (*MemFiler)(nil)

// MemFiler is a memory-backed Filer stored in BlockSize pages. A read at or
// past the current size returns n == 0 and io.EOF; a read crossing the size
// is cut short there and also returns io.EOF. Blocks inside the size that
// were never written read as zeros, as if the "file" were sparse.
// BeginUpdate/EndUpdate/Rollback only track nesting (EndUpdate and
// Rollback return InvalidError when unbalanced) -- MemFiler does not itself
// implement structural transactions and Rollback undoes nothing; it is
// meant to be wrapped if that's needed, same as lldb.MemFiler.
type MemFiler struct {
	m    map[uint64][]byte // blkno -> BlockSize bytes
	size int64
	name string
	nest int
}

// NewMemFiler returns a new, empty MemFiler.
func NewMemFiler() *MemFiler {
	return &MemFiler{m: map[uint64][]byte{}, name: "memfiler"}
}

func (f *MemFiler) BeginUpdate() error { f.nest++; return nil }
func (f *MemFiler) EndUpdate() error {
	if f.nest == 0 {
		return &InvalidError{Src: "MemFiler.EndUpdate", Arg: "unbalanced"}
	}
	f.nest--
	return nil
}
func (f *MemFiler) Rollback() error { return f.EndUpdate() }
func (f *MemFiler) Close() error    { return nil }
func (f *MemFiler) Name() string    { return f.name }
func (f *MemFiler) Size() int64     { return f.size }

func (f *MemFiler) ReadAt(b []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, &InvalidError{Src: "MemFiler.ReadAt", Arg: off}
	}

	avail := f.size - off
	if avail <= 0 {
		return 0, io.EOF
	}

	rem := len(b)
	if int64(rem) > avail {
		rem = int(avail)
		err = io.EOF
	}

	blkI := off / BlockSize
	blkO := int(off % BlockSize)
	for rem > 0 {
		nc := mathutil.Min(rem, BlockSize-blkO)
		pg := f.m[uint64(blkI)]
		if pg == nil {
			for i := 0; i < nc; i++ {
				b[i] = 0
			}
		} else {
			copy(b[:nc], pg[blkO:])
		}
		blkI++
		blkO = 0
		rem -= nc
		n += nc
		b = b[nc:]
	}
	return
}

func (f *MemFiler) WriteAt(b []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, &InvalidError{Src: "MemFiler.WriteAt", Arg: off}
	}

	n = len(b)
	rem := n
	blkI := off / BlockSize
	blkO := int(off % BlockSize)
	for rem > 0 {
		pg := f.m[uint64(blkI)]
		if pg == nil {
			pg = make([]byte, BlockSize)
			f.m[uint64(blkI)] = pg
		}
		nc := copy(pg[blkO:], b)
		blkI++
		blkO = 0
		rem -= nc
		b = b[nc:]
	}

	f.size = mathutil.MaxInt64(f.size, off+int64(n))
	return
}

func (f *MemFiler) Truncate(size int64) error {
	if size < 0 {
		return &InvalidError{Src: "MemFiler.Truncate", Arg: size}
	}

	if size == 0 {
		f.m = map[uint64][]byte{}
		f.size = 0
		return nil
	}

	first := size / BlockSize
	if size%BlockSize != 0 {
		first++
	}
	last := f.size / BlockSize
	if f.size%BlockSize != 0 {
		last++
	}
	for ; first < last; first++ {
		delete(f.m, uint64(first))
	}

	f.size = size
	return nil
}
