// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import "testing"

func TestBitmapAllocFree(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	blkno, err := v.bitmapAlloc()
	if err != nil {
		t.Fatal(err)
	}
	if classify(blkno) != RegionBitmap {
		t.Fatalf("bitmapAlloc returned %d, not in bitmap region", blkno)
	}

	blkno2, err := v.bitmapAlloc()
	if err != nil {
		t.Fatal(err)
	}
	if blkno2 == blkno {
		t.Fatalf("bitmapAlloc returned the same block twice: %d", blkno)
	}

	if err := v.bitmapFree(blkno); err != nil {
		t.Fatal(err)
	}
}

func TestBitmapExhaustion(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	for i := 0; i < Slots; i++ {
		if _, err := v.bitmapAlloc(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}

	if _, err := v.bitmapAlloc(); !IsNoSpace(err) {
		t.Fatalf("expected NoSpace, got %v", err)
	}
}

// TestBitmapStableIntersect verifies the stable-intersect scan rationale
// from spec §4.B: a block freed in the dirty view during this transaction
// must not be handed back out by a subsequent dirty-view allocation,
// because the stable view still references it.
func TestBitmapStableIntersect(t *testing.T) {
	v, _ := newTestVolume(t, 1024)

	blkno, err := v.bitmapAlloc()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := v.bitmapFree(blkno); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < Slots-1; i++ {
		got, err := v.bitmapAlloc()
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		if got == blkno {
			t.Fatalf("bitmapAlloc handed back the freed-but-still-stable block %d", blkno)
		}
	}

	if _, err := v.bitmapAlloc(); !IsNoSpace(err) {
		t.Fatalf("expected NoSpace (freed block still referenced by stable view), got %v", err)
	}
}
