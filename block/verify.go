// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "fmt"

// AllocStats records aggregate allocator statistics, optionally filled by
// Volume.Verify on success. Grounded on lldb.Allocator's AllocStats.
type AllocStats struct {
	TotalBlocks uint64
	FreeBlocks  uint64 // per the dirty view's order totals
	UsedSlots   int    // slots with a materialized dirty buddy block
}

// Verify checks the hierarchy and accounting invariants (spec §3 invariants
// 1 and 4, testable properties 2-3) of every materialized dirty buddy
// block, and the dirty order_totals against the per-slot order_counts,
// reporting each violation to log; log's bool return mirrors
// lldb.Allocator.Verify's "keep going?" convention -- false stops the
// walk early. Coverage and order alignment (invariants 2-3) hold by
// construction and are not rechecked. If stats is non-nil and the walk is
// not stopped early, it is filled in, whether or not violations were
// logged.
func (v *Volume) Verify(log func(error) bool, stats *AllocStats) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if log == nil {
		log = func(error) bool { return true }
	}

	var used int
	var sums [Orders]uint64
	for s, bb := range v.dirtyBuddy {
		if !v.verifyHierarchy(s, bb, log) {
			return fmt.Errorf("block: verify aborted at slot %d", s)
		}
		if !v.verifyAccounting(s, bb, log) {
			return fmt.Errorf("block: verify aborted at slot %d", s)
		}
		for k := range sums {
			sums[k] += uint64(bb.orderCounts[k])
		}
		used++
	}
	for k, sum := range sums {
		if sum != v.dirtyInd.orderTotals[k] {
			err := fmt.Errorf("block: order %d order_totals %d != sum of order_counts %d", k, v.dirtyInd.orderTotals[k], sum)
			if !log(err) {
				return fmt.Errorf("block: verify aborted at order %d totals", k)
			}
		}
	}

	if stats != nil {
		*stats = AllocStats{
			TotalBlocks: v.opts.TotalBlocks,
			FreeBlocks:  v.bfree(),
			UsedSlots:   used,
		}
	}
	return nil
}

// verifyHierarchy checks invariant 1: if bit n at order k is set, both
// children at order k-1 (bits 2n and 2n+1) are clear, recursively.
func (v *Volume) verifyHierarchy(s int, bb *buddyBlock, log func(error) bool) bool {
	for k := Orders - 1; k > 0; k-- {
		nbits := int64(Order0Bits) >> uint(k)
		for n := int64(0); n < nbits; n++ {
			if !testBit(bb.bits[k], n) {
				continue
			}
			if testBit(bb.bits[k-1], 2*n) || testBit(bb.bits[k-1], 2*n+1) {
				err := fmt.Errorf("block: slot %d: hierarchy violation at order %d position %d", s, k, n)
				if !log(err) {
					return false
				}
			}
		}
	}
	return true
}

// verifyAccounting checks invariant 4: order_counts[k] equals the popcount
// of the order-k sub-bitmap, and free_orders bit k iff order_counts[k]>0.
func (v *Volume) verifyAccounting(s int, bb *buddyBlock, log func(error) bool) bool {
	for k := 0; k < Orders; k++ {
		pc := popcount(bb.bits[k])
		if pc != int64(bb.orderCounts[k]) {
			err := fmt.Errorf("block: slot %d: order %d popcount %d != order_counts %d", s, k, pc, bb.orderCounts[k])
			if !log(err) {
				return false
			}
		}

		want := bb.orderCounts[k] > 0
		got := v.dirtyInd.slot[s].FreeOrders&(1<<uint(k)) != 0
		if want != got {
			err := fmt.Errorf("block: slot %d: free_orders bit %d stale", s, k)
			if !log(err) {
				return false
			}
		}
	}
	return true
}
