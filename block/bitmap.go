// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

// bitmapAlloc implements spec §4.B's bitmap_alloc: scan the dirty and
// stable self-host bitmaps for the lowest bit set in both, clear it in the
// dirty view, and return the corresponding physical block number. Must be
// called with v.mu held.
func (v *Volume) bitmapAlloc() (uint64, error) {
	if v.stableBitmap == nil || v.dirtyBitmap == nil {
		return 0, &IoCorruptError{Src: "Volume.bitmapAlloc", More: &InvalidError{Src: "bitmap ref absent", Arg: nil}}
	}

	d := firstSetBitBoth(v.dirtyBitmap, v.stableBitmap, Slots)
	if d < 0 {
		return 0, &NoSpaceError{Src: "Volume.bitmapAlloc", Order: -1}
	}

	clearBit(v.dirtyBitmap, d)
	return BMBlkno + BMNr + uint64(d), nil
}

// bitmapFree implements spec §4.B's bitmap_free: set the bit for blkno in
// the dirty bitmap; the stable view is not touched. Once the block's
// allocation has been committed its stable bit is clear, so bitmapAlloc
// cannot hand it out again until this free is committed too. A block
// allocated and freed within one transaction still has its stable bit set
// and can be handed out again at once, since the stable view never
// referenced it. Must be called with v.mu held.
func (v *Volume) bitmapFree(blkno uint64) error {
	if blkno < BMBlkno+BMNr || blkno >= FirstBlkno {
		return &InvalidError{Src: "Volume.bitmapFree", Arg: blkno}
	}
	setBit(v.dirtyBitmap, int64(blkno-BMBlkno-BMNr))
	return nil
}
