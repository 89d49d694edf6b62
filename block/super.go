// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"sync"
)

// Fixed on-disk geometry constants, analogous to the original kernel
// module's compile-time #defines: these never vary per volume, only
// TotalBlocks (the device size) does. BlockSize is declared in filer.go.
const (
	// Orders is the number of buddy levels; a buddy block's highest
	// order allocates 2^(Orders-1) blocks.
	Orders = 5

	// Order0Bits is the order-0 bit count per buddy block.
	Order0Bits = 32768

	// Slots is the number of slots per indirect block, and therefore
	// also the self-host bitmap's bit count (BuddyBlocks).
	Slots = 256

	// MapCount is the number of block numbers per block-map item.
	MapCount = 16

	// MapShift is log2(MapCount).
	MapShift = 4

	// MapMask is MapCount-1.
	MapMask = MapCount - 1

	// PairBlocks is the size, in blocks, of the commit-pair region
	// occupying [0, PairBlocks).
	PairBlocks = 2

	// BMBlkno is the fixed start of the self-host bitmap region,
	// immediately after the commit-pair region. See SPEC_FULL.md §13.1.
	BMBlkno = PairBlocks

	// BMNr is the span, in blocks, of the self-host bitmap region.
	BMNr = 1

	// FirstBlkno is the start of the Buddy region: BMBlkno + BMNr +
	// buddy_blocks (spec §3's coverage invariant), with buddy_blocks
	// == Slots.
	FirstBlkno = BMBlkno + BMNr + Slots
)

// BlockRef is a persistent reference to a block: {blkno, seq}. A zero Blkno
// denotes "absent". Seq is set at dirty time and used by the block layer
// (outside this package's scope) for staleness detection; this package
// only plumbs it through.
type BlockRef struct {
	Blkno uint64
	Seq   uint64
}

// Absent reports whether the reference denotes "no block".
func (r BlockRef) Absent() bool { return r.Blkno == 0 }

// SuperBlock is a point-in-time snapshot of the persistent root (spec §3),
// returned by Volume.Stat for monitoring/Verify; it is not the live
// mutation target (see Volume's dirty/stable fields).
type SuperBlock struct {
	BuddyBMRef  BlockRef
	BuddyIndRef BlockRef
	BuddyBlocks uint64
	TotalBlocks uint64
}

// indirectSlot is one entry of the buddy indirect block (spec §3).
type indirectSlot struct {
	Ref        BlockRef
	FreeOrders uint8
}

// indirectBlock is the in-memory form of the buddy indirect block: Slots
// slots plus aggregate per-order free counts.
type indirectBlock struct {
	slot        [Slots]indirectSlot
	orderTotals [Orders]uint64
}

func newIndirectBlock() *indirectBlock { return &indirectBlock{} }

func (ib *indirectBlock) clone() *indirectBlock {
	c := *ib
	return &c
}

// buddyBlock is the in-memory form of one buddy block: per-order
// sub-bitmaps plus their cached popcounts (spec §3).
type buddyBlock struct {
	bits        [Orders][]byte
	orderCounts [Orders]uint32
}

func (bb *buddyBlock) clone() *buddyBlock {
	c := &buddyBlock{orderCounts: bb.orderCounts}
	for k := range bb.bits {
		c.bits[k] = append([]byte(nil), bb.bits[k]...)
	}
	return c
}

// Options configure the one thing that does vary per volume: device size.
// Call DefaultOptions and override TotalBlocks before passing to NewVolume;
// NewVolume calls check() exactly once, mirroring dbm.Options.check's
// validate-once gate.
type Options struct {
	// TotalBlocks is the device size in blocks.
	TotalBlocks uint64

	checked bool
}

// DefaultOptions returns the geometry used throughout spec §8's
// end-to-end scenarios: a single self-host bitmap block, 1024 data blocks
// after the Pair and Bitmap regions.
func DefaultOptions() Options {
	return Options{TotalBlocks: FirstBlkno + 1024}
}

func (o *Options) check() error {
	if o.checked {
		return nil
	}
	if o.TotalBlocks <= FirstBlkno {
		return &InvalidError{Src: "Options.TotalBlocks", Arg: o.TotalBlocks}
	}
	o.checked = true
	return nil
}

// Volume is the per-mounted-device allocator state. Structural metadata
// (the self-host bitmap, the indirect block, and lazily-materialized buddy
// blocks) is held entirely in memory as a dirty view and a stable view;
// durable persistence of those views across a commit/abort boundary, and
// the ref-based dirty-on-write CoW of the blocks that back them, is the
// job of the block I/O layer and transaction controller this package
// treats as external collaborators (spec §1). Volume's Filer is the data
// block address space alloc/free hand out blknos into.
type Volume struct {
	f     Filer
	opts  Options
	log   Logger
	bt    BTree
	trans Trans

	mu sync.Mutex // the allocator mutex

	dirtyBitmap  []byte
	stableBitmap []byte

	dirtyInd  *indirectBlock
	stableInd *indirectBlock

	dirtyBuddy  map[int]*buddyBlock
	stableBuddy map[int]*buddyBlock

	reservoir reservoir

	noReentry bool // write_begin re-entrancy guard, spec §5
	mounted   bool
}

// NewVolume validates opts and returns a Volume bound to f, bt (the
// mapping-item store) and trans (the transaction controller). Mount must
// be called before any allocation/mapping operation. A nil trans defaults
// to noopTrans, suitable for tests that drive Volume directly.
func NewVolume(f Filer, opts Options, bt BTree, trans Trans, log Logger) (*Volume, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	if log == nil {
		log = defaultLogger
	}
	if trans == nil {
		trans = noopTrans{}
	}

	return &Volume{f: f, opts: opts, bt: bt, trans: trans, log: log}, nil
}

// Options returns the Volume's validated geometry.
func (v *Volume) Options() Options { return v.opts }

// Mount initializes the Volume's dirty and stable views. A volume is
// always mounted empty (every slot free, no buddy blocks materialized) --
// the mkfs-adjacent bootstrap path -- since durable cross-mount state
// belongs to the external block layer, not this package. See
// SPEC_FULL.md §12.
func (v *Volume) Mount() error {
	if v.mounted {
		return &InvalidError{Src: "Volume.Mount", Arg: "already mounted"}
	}

	nbytes := (Slots + 7) / 8
	bm := make([]byte, nbytes)
	for i := 0; i < Slots; i++ {
		setBit(bm, int64(i))
	}

	v.stableBitmap = bm
	v.dirtyBitmap = append([]byte(nil), bm...)
	v.stableInd = newIndirectBlock()
	v.dirtyInd = newIndirectBlock()
	v.stableBuddy = map[int]*buddyBlock{}
	v.dirtyBuddy = map[int]*buddyBlock{}
	v.reservoir = reservoir{}
	v.mounted = true
	return nil
}

// Unmount refuses while the reservoir still holds blocks (Commit drains
// it) and otherwise marks the Volume unmounted; the in-memory views are
// left as they are, and uncommitted dirty-view changes are not detected.
// It does not itself commit: the transaction controller (external) is
// responsible for the final commit before unmount.
func (v *Volume) Unmount() error {
	if !v.mounted {
		return &InvalidError{Src: "Volume.Unmount", Arg: "not mounted"}
	}
	if v.reservoir.count != 0 {
		return &InvalidError{Src: "Volume.Unmount", Arg: "reservoir not drained"}
	}
	v.mounted = false
	return nil
}

// Commit snapshots the dirty view into the stable view (spec §2's "on
// commit, the transaction controller swaps dirty view into stable"); the
// reservoir is drained back to the buddy allocator first, per spec §4.D.3.
func (v *Volume) Commit() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.drainReservoirLocked(); err != nil {
		return err
	}

	v.stableBitmap = append([]byte(nil), v.dirtyBitmap...)
	v.stableInd = v.dirtyInd.clone()
	sb := make(map[int]*buddyBlock, len(v.dirtyBuddy))
	for slot, bb := range v.dirtyBuddy {
		sb[slot] = bb.clone()
	}
	v.stableBuddy = sb
	return nil
}

// Abort discards the dirty view, replacing it with a fresh copy of the
// last committed stable view, per spec §5's "discarding dirty blocks
// rather than undoing bits".
func (v *Volume) Abort() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.dirtyBitmap = append([]byte(nil), v.stableBitmap...)
	v.dirtyInd = v.stableInd.clone()
	db := make(map[int]*buddyBlock, len(v.stableBuddy))
	for slot, bb := range v.stableBuddy {
		db[slot] = bb.clone()
	}
	v.dirtyBuddy = db
	v.reservoir = reservoir{}
}

// Stat returns a snapshot of the persistent root for monitoring/Verify.
func (v *Volume) Stat() SuperBlock {
	v.mu.Lock()
	defer v.mu.Unlock()

	return SuperBlock{
		BuddyBMRef:  BlockRef{Blkno: BMBlkno, Seq: 1},
		BuddyIndRef: v.stableInd.ref(),
		BuddyBlocks: uint64(Slots),
		TotalBlocks: v.opts.TotalBlocks,
	}
}

// ref is a placeholder BlockRef for the indirect block; its physical
// placement (one of the Bitmap region's pinned slots) is a block-layer
// concern external to this package.
func (ib *indirectBlock) ref() BlockRef {
	if ib == nil {
		return BlockRef{}
	}
	return BlockRef{Blkno: BMBlkno + BMNr, Seq: 1}
}
