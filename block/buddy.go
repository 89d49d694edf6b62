// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "math/bits"

// slotCount returns how many blocks slot s actually manages, clipped to
// the device size (spec §3's coverage invariant).
func (v *Volume) slotCount(s int) uint64 {
	base := FirstBlkno + uint64(s)*Order0Bits
	if base >= v.opts.TotalBlocks {
		return 0
	}
	end := base + Order0Bits
	if end > v.opts.TotalBlocks {
		end = v.opts.TotalBlocks
	}
	return end - base
}

// slotBase returns the first block number managed by slot s.
func slotBase(s int) uint64 { return FirstBlkno + uint64(s)*Order0Bits }

// newBuddyBlock seeds a fresh buddy block so that the largest valid orders
// covering count blocks are marked free (spec §9's lazy slot init note):
// greedily tile [0, count) with maximal, naturally aligned power-of-two
// extents, largest order first.
func newBuddyBlock(count uint64) *buddyBlock {
	bb := &buddyBlock{}
	for k := 0; k < Orders; k++ {
		bb.bits[k] = make([]byte, (Order0Bits>>uint(k)+7)/8)
	}

	pos := uint64(0)
	for pos < count {
		for k := Orders - 1; k >= 0; k-- {
			sz := uint64(1) << uint(k)
			if pos%sz == 0 && pos+sz <= count {
				setBit(bb.bits[k], int64(pos>>uint(k)))
				bb.orderCounts[k]++
				pos += sz
				break
			}
		}
	}
	return bb
}

// virtualFreeOrders predicts the free_orders mask a not-yet-materialized
// slot of the given block count would have, without allocating a
// buddyBlock: the same greedy decomposition as newBuddyBlock, counting
// only which orders receive a bit.
func virtualFreeOrders(count uint64) uint8 {
	var mask uint8
	pos := uint64(0)
	for pos < count {
		for k := Orders - 1; k >= 0; k-- {
			sz := uint64(1) << uint(k)
			if pos%sz == 0 && pos+sz <= count {
				mask |= 1 << uint(k)
				pos += sz
				break
			}
		}
	}
	return mask
}

// ensureDirtySlot returns the dirty buddy block for slot s, materializing
// it (and dirtying a fresh physical block for it via the self-host bitmap
// allocator) the first time the slot is touched, per spec §9's lazy
// creation note. Must be called with v.mu held.
func (v *Volume) ensureDirtySlot(s int) (*buddyBlock, error) {
	if bb, ok := v.dirtyBuddy[s]; ok {
		return bb, nil
	}

	blkno, err := v.bitmapAlloc()
	if err != nil {
		return nil, err
	}

	bb := newBuddyBlock(v.slotCount(s))
	v.dirtyBuddy[s] = bb
	v.dirtyInd.slot[s].Ref = BlockRef{Blkno: blkno, Seq: 1}
	for k := 0; k < Orders; k++ {
		if bb.orderCounts[k] > 0 {
			v.dirtyInd.orderTotals[k] += uint64(bb.orderCounts[k])
			v.dirtyInd.slot[s].FreeOrders |= 1 << uint(k)
		}
	}
	return bb, nil
}

// touchOrderCount applies delta to slot s's order-k popcount and keeps
// order_totals and free_orders in sync (spec §3's accounting invariant).
// Must be called with v.mu held.
func (v *Volume) touchOrderCount(s, k int, delta int32) {
	bb := v.dirtyBuddy[s]
	bb.orderCounts[k] = uint32(int32(bb.orderCounts[k]) + delta)
	v.dirtyInd.orderTotals[k] = uint64(int64(v.dirtyInd.orderTotals[k]) + int64(delta))
	if bb.orderCounts[k] > 0 {
		v.dirtyInd.slot[s].FreeOrders |= 1 << uint(k)
	} else {
		v.dirtyInd.slot[s].FreeOrders &^= 1 << uint(k)
	}
}

// dirtyFreeOrders and stableFreeOrders report slot s's free_orders mask,
// falling back to virtualFreeOrders for a slot neither view has
// materialized yet.
func (v *Volume) dirtyFreeOrders(s int) uint8 {
	if v.dirtyInd.slot[s].Ref.Absent() {
		return virtualFreeOrders(v.slotCount(s))
	}
	return v.dirtyInd.slot[s].FreeOrders
}

func (v *Volume) stableFreeOrders(s int) uint8 {
	if v.stableInd.slot[s].Ref.Absent() {
		return virtualFreeOrders(v.slotCount(s))
	}
	return v.stableInd.slot[s].FreeOrders
}

// testBuddyBitOrHigher reports whether stable slot bb has a free region of
// order >= order covering position n at that order (spec §4.C.4's
// was_free / §4.C.2's cross-view check). A nil bb means the slot was never
// populated in the stable view, hence entirely free.
func testBuddyBitOrHigher(bb *buddyBlock, order int, n int64) bool {
	if bb == nil {
		return true
	}
	for k := order; k < Orders; k++ {
		if testBit(bb.bits[k], n>>uint(k-order)) {
			return true
		}
	}
	return false
}

// findFirstFit implements spec §4.C.2 step 4: scan dirty sub-bitmaps from
// order upward, accepting the first (lowest order, then lowest position)
// candidate whose extent is still free in the stable view.
func findFirstFit(dd, sb *buddyBlock, order int) (foundOrder int, nr int64, ok bool) {
	for k := order; k < Orders; k++ {
		nbits := int64(Order0Bits) >> uint(k)
		for n := int64(0); n < nbits; n++ {
			if testBit(dd.bits[k], n) && testBuddyBitOrHigher(sb, k, n) {
				return k, n, true
			}
		}
	}
	return 0, 0, false
}

// allocSlot runs spec §4.C.2 steps 4-6 against one slot: materialize the
// dirty buddy block, find a fit, split it down to order, and return the
// resulting block number. Must be called with v.mu held.
func (v *Volume) allocSlot(s, order int) (uint64, error) {
	dd, err := v.ensureDirtySlot(s)
	if err != nil {
		return 0, err
	}

	foundOrder, nr, ok := findFirstFit(dd, v.stableBuddy[s], order)
	if !ok {
		return 0, &NoSpaceError{Src: "Volume.allocSlot", Order: order}
	}

	clearBit(dd.bits[foundOrder], nr)
	v.touchOrderCount(s, foundOrder, -1)

	pos := nr
	for i := foundOrder - 1; i >= order; i-- {
		pos <<= 1
		right := pos | 1
		setBit(dd.bits[i], right)
		v.touchOrderCount(s, i, +1)
	}

	return slotBase(s) + uint64(pos)*(1<<uint(order)), nil
}

// buddyAllocAtOrder runs spec §4.C.2 steps 1-3: scan every slot eligible
// at the given order (free in both views) and delegate to allocSlot. Must
// be called with v.mu held.
func (v *Volume) buddyAllocAtOrder(order int) (uint64, error) {
	mask := uint8(0xff) << uint(order)
	for s := 0; s < Slots; s++ {
		if v.slotCount(s) == 0 {
			continue
		}
		if v.dirtyFreeOrders(s)&mask == 0 || v.stableFreeOrders(s)&mask == 0 {
			continue
		}
		blkno, err := v.allocSlot(s, order)
		if err == nil {
			return blkno, nil
		}
		if !IsNoSpace(err) {
			return 0, err
		}
	}
	return 0, &NoSpaceError{Src: "Volume.buddyAllocAtOrder", Order: order}
}

// buddyAlloc implements spec §4.C.1's alloc: request order, fall back to
// progressively smaller orders, never larger. Must be called with v.mu
// held.
func (v *Volume) buddyAlloc(order int) (blkno uint64, granted int, err error) {
	if order < 0 || order >= Orders {
		return 0, 0, &InvalidError{Src: "Volume.buddyAlloc", Arg: order}
	}

	for o := order; o >= 0; o-- {
		blkno, err = v.buddyAllocAtOrder(o)
		if err == nil {
			return blkno, o, nil
		}
		if !IsNoSpace(err) {
			return 0, 0, err
		}
	}
	return 0, 0, &NoSpaceError{Src: "Volume.buddyAlloc", Order: order}
}

// slotOf splits an absolute block number into its slot index and its
// order-0 offset within that slot.
func slotOf(blkno uint64) (s int, off uint64) {
	rel := blkno - FirstBlkno
	return int(rel / Order0Bits), rel % Order0Bits
}

// buddyFree implements spec §4.C.3: exact-order free with canonical buddy
// merging. Must be called with v.mu held.
func (v *Volume) buddyFree(blkno uint64, order int) error {
	if order < 0 || order >= Orders {
		return &InvalidError{Src: "Volume.buddyFree", Arg: order}
	}
	s, off := slotOf(blkno)
	if off%(uint64(1)<<uint(order)) != 0 {
		return &InvalidError{Src: "Volume.buddyFree", Arg: blkno}
	}

	dd, err := v.ensureDirtySlot(s)
	if err != nil {
		return err
	}

	nr := int64(off >> uint(order))
	i := order
	for ; i < Orders-1; i++ {
		buddyNr := nr ^ 1
		if !testBit(dd.bits[i], buddyNr) {
			break
		}
		clearBit(dd.bits[i], buddyNr)
		v.touchOrderCount(s, i, -1)
		nr >>= 1
	}
	setBit(dd.bits[i], nr)
	v.touchOrderCount(s, i, +1)
	return nil
}

// buddyFreeExtent implements spec §4.C.1's free_extent: free an unaligned
// run by iteratively choosing the largest order that is simultaneously
// block-aligned, within the remaining count, and below Orders. Must be
// called with v.mu held.
func (v *Volume) buddyFreeExtent(blkno, count uint64) error {
	for count > 0 {
		_, off := slotOf(blkno)
		align := Orders - 1
		if off != 0 {
			if tz := bits.TrailingZeros64(off); tz < align {
				align = tz
			}
		}
		if lg := floorLog2(count); lg < align {
			align = lg
		}
		sz := uint64(1) << uint(align)
		if err := v.buddyFree(blkno, align); err != nil {
			return err
		}
		blkno += sz
		count -= sz
	}
	return nil
}

func floorLog2(n uint64) int {
	if n == 0 {
		return 0
	}
	return bits.Len64(n) - 1
}

// wasFree implements spec §4.C.4: was this extent free in the stable
// view? Must be called with v.mu held.
func (v *Volume) wasFree(blkno uint64, order int) bool {
	s, off := slotOf(blkno)
	nr := int64(off >> uint(order))
	return testBuddyBitOrHigher(v.stableBuddy[s], order, nr)
}

// bfree implements spec §4.C.1's bfree: approximate free-block count from
// the dirty view's order totals.
func (v *Volume) bfree() uint64 {
	var n uint64
	for k, total := range v.dirtyInd.orderTotals {
		n += total * (uint64(1) << uint(k))
	}
	return n
}

// Alloc requests an extent of 2^order blocks, returning the block number
// and the order actually granted (spec §4.C.1).
func (v *Volume) Alloc(order int) (blkno uint64, granted int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buddyAlloc(order)
}

// Free returns an aligned extent of 2^order blocks to the buddy allocator.
func (v *Volume) Free(blkno uint64, order int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buddyFree(blkno, order)
}

// FreeExtent returns an unaligned run of count blocks starting at blkno.
func (v *Volume) FreeExtent(blkno, count uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buddyFreeExtent(blkno, count)
}

// WasFree reports whether the given extent was free in the last committed
// (stable) view.
func (v *Volume) WasFree(blkno uint64, order int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wasFree(blkno, order)
}

// Bfree returns the approximate number of free blocks in the dirty view.
func (v *Volume) Bfree() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bfree()
}
