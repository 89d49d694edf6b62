// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "testing"

// TestWriteOffsetZero covers spec §8 end-to-end scenario 1: write 4 KiB
// at offset 0, then after commit contig_mapped_blocks must report it.
func TestWriteOffsetZero(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	blkno, err := v.MapWritableBlock(5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Commit(); err != nil {
		t.Fatal(err)
	}

	count, got, err := v.ContigMappedBlocks(5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || got != blkno {
		t.Fatalf("ContigMappedBlocks(5,0) = (%d, %d), want (1, %d)", count, got, blkno)
	}
}

// TestCowReuseSameTransaction covers spec §8 property 7 / scenario 2:
// within one transaction, re-mapping the same logical block returns the
// same physical block.
func TestCowReuseSameTransaction(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	b0, err := v.MapWritableBlock(5, 0)
	if err != nil {
		t.Fatal(err)
	}
	b1, err := v.MapWritableBlock(5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b0 != b1 {
		t.Fatalf("second MapWritableBlock returned %d, want reuse of %d", b1, b0)
	}
}

// TestCowNewTransactionAllocatesFresh covers spec §8 scenario 3: remapping
// in a new transaction (after commit) must allocate a fresh block, and
// the old one must report WasFree afterward.
func TestCowNewTransactionAllocatesFresh(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	b0, err := v.MapWritableBlock(5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Commit(); err != nil {
		t.Fatal(err)
	}

	b1, err := v.MapWritableBlock(5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b1 == b0 {
		t.Fatalf("new-transaction remap returned the same block %d", b0)
	}

	if err := v.Commit(); err != nil {
		t.Fatal(err)
	}
	if !v.WasFree(b0, 0) {
		t.Fatalf("predecessor block %d not WasFree after commit", b0)
	}
}

// TestWrite64KiB covers spec §8 scenario 4: 16 consecutive logical blocks
// in one transaction should come from a single bulk reservoir refill and
// land on contiguous physical block numbers.
func TestWrite64KiB(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	var first uint64
	for i := uint64(0); i < MapCount; i++ {
		blkno, err := v.MapWritableBlock(5, i)
		if err != nil {
			t.Fatalf("iblock %d: %v", i, err)
		}
		if i == 0 {
			first = blkno
		} else if blkno != first+i {
			t.Fatalf("iblock %d got blkno %d, want %d (contiguous)", i, blkno, first+i)
		}
	}

	if err := v.Commit(); err != nil {
		t.Fatal(err)
	}
	count, blkno, err := v.ContigMappedBlocks(5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if count != MapCount || blkno != first {
		t.Fatalf("ContigMappedBlocks(5,0) = (%d, %d), want (%d, %d)", count, blkno, MapCount, first)
	}
}

// TestReservoirLIFO covers spec §8 property 6: returning the most
// recently allocated block makes the next allocation hand it straight
// back out.
func TestReservoirLIFO(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	b0, err := v.allocFileBlock()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.returnFileBlock(b0); err != nil {
		t.Fatal(err)
	}
	b1, err := v.allocFileBlock()
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b0 {
		t.Fatalf("allocFileBlock after return = %d, want %d", b1, b0)
	}
}

// TestCrossTransactionDisjointness covers spec §8 property 8.
func TestCrossTransactionDisjointness(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	seen := map[uint64]bool{}
	for i := uint64(0); i < 8; i++ {
		blkno, err := v.MapWritableBlock(1, i)
		if err != nil {
			t.Fatal(err)
		}
		seen[blkno] = true
	}
	if err := v.Commit(); err != nil {
		t.Fatal(err)
	}

	for i := uint64(100); i < 108; i++ {
		blkno, err := v.MapWritableBlock(2, i)
		if err != nil {
			t.Fatal(err)
		}
		if seen[blkno] {
			t.Fatalf("new transaction allocated %d, already referenced by stable tree", blkno)
		}
	}
}
