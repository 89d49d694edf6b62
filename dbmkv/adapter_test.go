// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbmkv

import (
	"testing"

	"github.com/cznic/exp/dbm"
	"github.com/h0kd33/scoutfs-kmod-dev/block"
)

func newTestAdapter(t *testing.T) *Adapter {
	db, err := dbm.CreateMem()
	if err != nil {
		t.Fatal(err)
	}
	return New(db)
}

func TestAdapterInsertLookup(t *testing.T) {
	a := newTestAdapter(t)
	key := block.Key{Inode: 1, Type: 0, Offset: 0}

	item, err := a.Insert(key)
	if err != nil {
		t.Fatal(err)
	}
	item.Blkno[3] = 4242

	got, ok, err := a.Lookup(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("Lookup after Insert reports not found")
	}
	if got.Blkno[3] != 4242 {
		t.Fatalf("Lookup returned Blkno[3] = %d, want 4242 (in-place mutation not visible pre-Flush)", got.Blkno[3])
	}
}

func TestAdapterInsertRejectsDuplicate(t *testing.T) {
	a := newTestAdapter(t)
	key := block.Key{Inode: 1, Type: 0, Offset: 0}

	if _, err := a.Insert(key); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Insert(key); !block.IsInvalid(err) {
		t.Fatalf("second Insert at the same key returned %v, want InvalidError", err)
	}
}

func TestAdapterUpdateRequiresExisting(t *testing.T) {
	a := newTestAdapter(t)
	key := block.Key{Inode: 1, Type: 0, Offset: 0}

	if _, err := a.Update(key); !block.IsInvalid(err) {
		t.Fatalf("Update of a missing key returned %v, want InvalidError", err)
	}
}

// TestAdapterFlushPersists covers the "dirty until Flush" discipline: a
// fresh Adapter over the same underlying dbm.DB must see the item only
// after Flush.
func TestAdapterFlushPersists(t *testing.T) {
	db, err := dbm.CreateMem()
	if err != nil {
		t.Fatal(err)
	}
	a := New(db)
	key := block.Key{Inode: 7, Type: 1, Offset: 3}

	item, err := a.Insert(key)
	if err != nil {
		t.Fatal(err)
	}
	item.Blkno[0] = 99

	b := New(db)
	if _, ok, err := b.Lookup(key); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatalf("unflushed item visible through a second Adapter")
	}

	if err := a.Flush(); err != nil {
		t.Fatal(err)
	}

	got, ok, err := b.Lookup(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("flushed item not visible through a second Adapter")
	}
	if got.Blkno[0] != 99 {
		t.Fatalf("got Blkno[0] = %d, want 99", got.Blkno[0])
	}
}

func TestAdapterDelete(t *testing.T) {
	a := newTestAdapter(t)
	key := block.Key{Inode: 1, Type: 0, Offset: 0}

	if _, err := a.Insert(key); err != nil {
		t.Fatal(err)
	}
	if err := a.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(key); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := a.Lookup(key); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatalf("Lookup after Delete still reports found")
	}
}
