// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// An abstraction of file like (persistent) storage, addressed in
// fixed-size blocks.

package block

import (
	"github.com/cznic/mathutil"
)

// BlockSize is the smallest supported page/block size. All Filer I/O in
// this package is performed in whole BlockSize units.
const BlockSize = 4096

// A Filer is a []byte-like model of the device backing a Volume. It is not
// safe for concurrent access; callers of this package serialize access to
// it through Volume's allocator mutex and the reservoir spin lock. ReadAt
// and WriteAt are always addressed by an absolute byte offset and are
// assumed to perform atomically.
//
// BeginUpdate/EndUpdate/Rollback mirror lldb.Filer's structural-transaction
// contract: BeginUpdate increments a nesting counter, EndUpdate or Rollback
// must balance exactly one BeginUpdate. A Filer that does not support
// structural transactions may implement all three as no-ops.
type Filer interface {
	BeginUpdate() error
	EndUpdate() error
	Rollback() error

	ReadAt(b []byte, off int64) (n int, err error)
	WriteAt(b []byte, off int64) (n int, err error)

	Size() int64
	Truncate(size int64) error

	Close() error
	Name() string
}

// ReadBlock reads the single block blkno (BlockSize bytes) from f.
func ReadBlock(f Filer, blkno uint64) ([]byte, error) {
	b := make([]byte, BlockSize)
	if _, err := f.ReadAt(b, int64(blkno)*BlockSize); err != nil {
		return nil, &IoError{Src: "ReadBlock", Err: err}
	}
	return b, nil
}

// WriteBlock writes b (must be BlockSize bytes) to block blkno of f.
func WriteBlock(f Filer, blkno uint64, b []byte) error {
	if len(b) != BlockSize {
		return &InvalidError{Src: "WriteBlock", Arg: len(b)}
	}
	if _, err := f.WriteAt(b, int64(blkno)*BlockSize); err != nil {
		return &IoError{Src: "WriteBlock", Err: err}
	}
	return nil
}

var _ Filer = (*InnerFiler)(nil)

// InnerFiler is a Filer with an added block-number offset translation. It
// lets a caller address a sub-range of an outer Filer's blocks starting at
// 0 while they really live at some fixed blkno range of the outer Filer.
type InnerFiler struct {
	outer    Filer
	blkOff   uint64
}

// NewInnerFiler returns a Filer wrapping outer in which block number n
// translates to outer block number n+blkOff.
func NewInnerFiler(outer Filer, blkOff uint64) *InnerFiler {
	return &InnerFiler{outer: outer, blkOff: blkOff}
}

func (f *InnerFiler) BeginUpdate() error { return f.outer.BeginUpdate() }
func (f *InnerFiler) EndUpdate() error   { return f.outer.EndUpdate() }
func (f *InnerFiler) Rollback() error    { return f.outer.Rollback() }
func (f *InnerFiler) Close() error       { return nil }
func (f *InnerFiler) Name() string       { return f.outer.Name() }

func (f *InnerFiler) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &InvalidError{Src: f.outer.Name() + ":ReadAt", Arg: off}
	}
	return f.outer.ReadAt(b, off+int64(f.blkOff)*BlockSize)
}

func (f *InnerFiler) WriteAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &InvalidError{Src: f.outer.Name() + ":WriteAt", Arg: off}
	}
	return f.outer.WriteAt(b, off+int64(f.blkOff)*BlockSize)
}

func (f *InnerFiler) Size() int64 {
	return mathutil.MaxInt64(f.outer.Size()-int64(f.blkOff)*BlockSize, 0)
}

func (f *InnerFiler) Truncate(size int64) error {
	return f.outer.Truncate(size + int64(f.blkOff)*BlockSize)
}
