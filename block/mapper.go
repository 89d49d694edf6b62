// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"runtime"
	"sync/atomic"
)

// spinlock is a busy-wait mutual exclusion primitive. sync.Mutex suspends
// a blocked goroutine (parks it), which spec §5 forbids while holding the
// reservoir lock ("spin-lock-held suspension is forbidden"); this type
// never suspends its holder, at the cost of burning CPU under contention.
type spinlock struct {
	state int32
}

func (s *spinlock) Lock() {
	for !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() {
	atomic.StoreInt32(&s.state, 0)
}

// reservoir is the per-volume file-block allocation reservoir (spec §3,
// §4.D.3): a contiguous run [blkno, blkno+count) carved one block at a
// time, refilled in bulk from the buddy allocator.
type reservoir struct {
	blkno uint64
	count uint64
	lock  spinlock
}

// allocFileBlock implements spec §4.D.3's alloc_file_block.
func (v *Volume) allocFileBlock() (uint64, error) {
	v.reservoir.lock.Lock()
	if v.reservoir.count == 0 {
		v.reservoir.lock.Unlock()

		blkno, granted, err := v.Alloc(Orders - 1)
		if err != nil {
			return 0, err
		}
		extent := uint64(1) << uint(granted)

		v.reservoir.lock.Lock()
		if v.reservoir.count == 0 {
			v.reservoir.blkno = blkno
			v.reservoir.count = extent
		} else {
			v.reservoir.lock.Unlock()
			if err := v.FreeExtent(blkno, extent); err != nil {
				return 0, err
			}
			v.reservoir.lock.Lock()
		}
	}

	blkno := v.reservoir.blkno
	v.reservoir.blkno++
	v.reservoir.count--
	v.reservoir.lock.Unlock()
	return blkno, nil
}

// returnFileBlock implements spec §4.D.3's return_file_block: LIFO-only,
// valid exclusively for the block most recently popped by allocFileBlock.
func (v *Volume) returnFileBlock(blkno uint64) error {
	v.reservoir.lock.Lock()
	defer v.reservoir.lock.Unlock()

	if v.reservoir.count != 0 && blkno+1 != v.reservoir.blkno {
		return &InvalidError{Src: "Volume.returnFileBlock", Arg: blkno}
	}
	v.reservoir.blkno = blkno
	v.reservoir.count++
	return nil
}

// drainReservoirLocked returns the whole remaining reservoir to the buddy
// allocator, per spec §4.D.3's "at transaction commit". Must be called
// with v.mu held.
func (v *Volume) drainReservoirLocked() error {
	v.reservoir.lock.Lock()
	blkno, count := v.reservoir.blkno, v.reservoir.count
	v.reservoir.blkno, v.reservoir.count = 0, 0
	v.reservoir.lock.Unlock()

	if count == 0 {
		return nil
	}
	return v.buddyFreeExtent(blkno, count)
}

// ContigMappedBlocks implements spec §4.D.1: look up the block-map item
// covering iblock and return the physical block and the run length of
// consecutive nonzero logical entries starting there. Returns (0, 0, nil)
// for an unmapped block.
func (v *Volume) ContigMappedBlocks(ino, iblock uint64) (count int, blkno uint64, err error) {
	item, ok, err := v.bt.Lookup(bmapKey(ino, iblock))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, nil
	}

	i := int(iblock & MapMask)
	if item.Blkno[i] == 0 {
		return 0, 0, nil
	}

	blkno = item.Blkno[i]
	for j := i; j < MapCount && item.Blkno[j] != 0; j++ {
		count++
	}
	return count, blkno, nil
}

// MapWritableBlock implements spec §4.D.2, the CoW heart: translate
// (inode, iblock) to a block guaranteed writable in the current
// transaction, allocating fresh storage and freeing the predecessor
// except when the existing mapping can be safely reused in place.
func (v *Volume) MapWritableBlock(ino, iblock uint64) (uint64, error) {
	key := bmapKey(ino, iblock)

	_, ok, err := v.bt.Lookup(key)
	if err != nil {
		return 0, err
	}

	var item *BmapItem
	var inserted bool
	if ok {
		item, err = v.bt.Update(key)
	} else {
		item, err = v.bt.Insert(key)
		inserted = true
	}
	if err != nil {
		return 0, err
	}

	i := int(iblock & MapMask)
	old := item.Blkno[i]

	if old != 0 && v.WasFree(old, 0) {
		return old, nil
	}

	newBlk, err := v.allocFileBlock()
	if err != nil {
		if inserted {
			if derr := v.bt.Delete(key); derr != nil {
				return 0, doubleTrouble(err, derr)
			}
		}
		return 0, err
	}

	if old != 0 {
		if err := v.Free(old, 0); err != nil {
			if rerr := v.returnFileBlock(newBlk); rerr != nil {
				err = doubleTrouble(err, rerr)
			}
			if inserted {
				if derr := v.bt.Delete(key); derr != nil {
					err = doubleTrouble(err, derr)
				}
			}
			return 0, err
		}
	}

	item.Blkno[i] = newBlk
	return newBlk, nil
}
