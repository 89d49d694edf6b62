// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

// Page is the page/buffer-cache external collaborator consumed by the
// write path adapter (spec §4.E). One Page covers BlockSize*NumBuffers()
// bytes of one inode's logical byte range starting at Iblock()*BlockSize;
// NumBuffers buffers, each one block, are mapped and filled independently.
type Page interface {
	Ino() uint64
	Iblock() uint64
	NumBuffers() int

	UpToDate() bool
	MarkUpToDate()

	// ReadFill reads block blkno's content into buffer bufIdx.
	ReadFill(bufIdx int, blkno uint64) error

	// ClearMappings drops any cached buffer-to-block mappings (spec §9's
	// buffer-cache adversity note: existing mappings may point at
	// stable, read-only physical blocks).
	ClearMappings()

	BufferMapped(bufIdx int) bool
	PublishMapping(bufIdx int, blkno uint64)
}

// fullyCovers reports whether a write of length bytes at position covers
// an entire block, so no read-before-write is needed for it.
func fullyCovers(position, length int) bool {
	return position%BlockSize == 0 && length >= BlockSize
}

// readPage runs the read-only path (spec §4.E step 2): for every buffer,
// resolve its physical block via ContigMappedBlocks and fill it. A hole
// (unmapped buffer) is left to the page's own zero-fill.
func (v *Volume) readPage(p Page) error {
	for i := 0; i < p.NumBuffers(); i++ {
		count, blkno, err := v.ContigMappedBlocks(p.Ino(), p.Iblock()+uint64(i))
		if err != nil {
			return err
		}
		if count == 0 {
			continue
		}
		if err := p.ReadFill(i, blkno); err != nil {
			return err
		}
	}
	return nil
}

// beginNoReentry sets the "no filesystem reentry" guard (spec §5) for the
// duration of write_begin, so that page-cache allocations triggered
// inside the transaction cannot recursively enter the filesystem. Returns
// an error if write_begin is somehow already active on this Volume.
// Must be called with v.mu held.
func (v *Volume) beginNoReentry() error {
	if v.noReentry {
		return &InvalidError{Src: "Volume.beginNoReentry", Arg: "reentrant write_begin"}
	}
	v.noReentry = true
	return nil
}

func (v *Volume) endNoReentry() { v.noReentry = false }

// WriteBegin implements spec §4.E's write path: read-before-write when
// needed, enter the transaction, clear stale buffer mappings, and map
// every unmapped buffer to a writable physical block.
func (v *Volume) WriteBegin(p Page, position, length int) error {
	if !p.UpToDate() && !fullyCovers(position, length) {
		if err := v.readPage(p); err != nil {
			return err
		}
		p.MarkUpToDate()
	}

	v.trans.Hold()
	defer v.trans.Release()

	v.mu.Lock()
	if err := v.beginNoReentry(); err != nil {
		v.mu.Unlock()
		return err
	}
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.endNoReentry()
		v.mu.Unlock()
	}()

	p.ClearMappings()

	for i := 0; i < p.NumBuffers(); i++ {
		if p.BufferMapped(i) {
			continue
		}
		blkno, err := v.MapWritableBlock(p.Ino(), p.Iblock()+uint64(i))
		if err != nil {
			return err
		}
		p.PublishMapping(i, blkno)
	}
	return nil
}

// Writepage implements the unmapped-dirty contract (spec §4.E, §9): the
// mmap path that could produce a dirty page without having run
// WriteBegin first is not implemented, so any unmapped buffer reaching
// writeback is a fatal, invalid state rather than a silent allocation.
func (v *Volume) Writepage(p Page) error {
	for i := 0; i < p.NumBuffers(); i++ {
		if !p.BufferMapped(i) {
			return &InvalidError{Src: "Volume.Writepage", Arg: "unmapped buffer (mmap write-back not implemented)"}
		}
	}
	return nil
}
