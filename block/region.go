// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

// Region identifies one of the three self-hosted partitions of the device
// address space (spec §4.A).
type Region int

const (
	// RegionPair is the fixed two-block commit-pair region [0, PairBlocks).
	RegionPair Region = iota

	// RegionBitmap is the span of physical blocks backing buddy metadata,
	// [BMBlkno, FirstBlkno): the pinned self-host bitmap block(s) at
	// [BMBlkno, BMBlkno+BMNr) plus the slots [BMBlkno+BMNr, FirstBlkno).
	// Bit i of the self-host bitmap block governs block BMBlkno+BMNr+i.
	RegionBitmap

	// RegionBuddy is everything from FirstBlkno onward: B-tree index
	// blocks and file data extents, governed by the buddy allocator.
	RegionBuddy
)

func (r Region) String() string {
	switch r {
	case RegionPair:
		return "pair"
	case RegionBitmap:
		return "bitmap"
	case RegionBuddy:
		return "buddy"
	default:
		return "invalid"
	}
}

// classify maps a device block number to its region.
func classify(blkno uint64) Region {
	switch {
	case blkno < PairBlocks:
		return RegionPair
	case blkno < FirstBlkno:
		return RegionBitmap
	default:
		return RegionBuddy
	}
}

// allocPair implements the Pair region's allocation rule: the two commit
// blocks ping-pong, so "allocating" the pair given the currently-active
// side just returns the other side. Free is a no-op -- one side is always
// in use.
func allocPair(existing uint64) uint64 {
	return existing ^ 1
}

// AllocSame allocates a replacement block in the same region as existing,
// per spec §6's buddy_alloc_same contract: CoW of metadata (an indirect
// block reference, a buddy block reference) must stay within the region it
// started in.
func (v *Volume) AllocSame(existing uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch classify(existing) {
	case RegionPair:
		return allocPair(existing), nil
	case RegionBitmap:
		return v.bitmapAlloc()
	default:
		blkno, _, err := v.buddyAlloc(0)
		return blkno, err
	}
}
