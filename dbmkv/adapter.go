// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dbmkv adapts dbm.DB, a B-tree-backed keyed array store, into the
// block.BTree contract the allocator core consumes for its file
// block-mapping items.
package dbmkv

import (
	"sync"

	"github.com/cznic/exp/dbm"
	"github.com/h0kd33/scoutfs-kmod-dev/block"
)

const arrayName = "bmap"

var _ block.BTree = (*Adapter)(nil)

// Adapter stores block.BmapItem values in a dbm.DB array keyed by
// (inode, type, offset), matching the B-tree key taxonomy of spec §6.
// Mutations made through pointers returned by Update/Insert accumulate in
// an in-memory cache and only reach the underlying DB on Flush -- the
// same "dirty until commit" discipline the allocator core itself follows,
// since dbm.DB.Get/Set round-trip by value and cannot otherwise see a
// caller's in-place edits to the returned item.
type Adapter struct {
	db *dbm.DB

	mu    sync.Mutex
	cache map[block.Key]*block.BmapItem
	dirty map[block.Key]struct{}
}

// New returns an Adapter backed by db.
func New(db *dbm.DB) *Adapter {
	return &Adapter{
		db:    db,
		cache: map[block.Key]*block.BmapItem{},
		dirty: map[block.Key]struct{}{},
	}
}

func (a *Adapter) lookupLocked(key block.Key) (*block.BmapItem, bool, error) {
	if item, ok := a.cache[key]; ok {
		return item, true, nil
	}

	v, err := a.db.Get(arrayName, key.Inode, key.Type, key.Offset)
	if err != nil {
		return nil, false, &block.IoError{Src: "dbmkv.Adapter.Lookup", Err: err}
	}
	if v == nil {
		return nil, false, nil
	}

	b, ok := v.([]byte)
	if !ok {
		return nil, false, &block.IoCorruptError{Src: "dbmkv.Adapter.Lookup", More: &block.InvalidError{Src: "value type", Arg: v}}
	}

	item, err := decodeBmapItem(b)
	if err != nil {
		return nil, false, err
	}
	a.cache[key] = item
	return item, true, nil
}

// Lookup implements block.BTree.
func (a *Adapter) Lookup(key block.Key) (*block.BmapItem, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lookupLocked(key)
}

// Update implements block.BTree: it fails if no item exists at key.
func (a *Adapter) Update(key block.Key) (*block.BmapItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	item, ok, err := a.lookupLocked(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &block.InvalidError{Src: "dbmkv.Adapter.Update", Arg: key}
	}
	a.dirty[key] = struct{}{}
	return item, nil
}

// Insert implements block.BTree: it fails if an item already exists at key.
func (a *Adapter) Insert(key block.Key) (*block.BmapItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok, err := a.lookupLocked(key); err != nil {
		return nil, err
	} else if ok {
		return nil, &block.InvalidError{Src: "dbmkv.Adapter.Insert", Arg: key}
	}

	item := &block.BmapItem{}
	a.cache[key] = item
	a.dirty[key] = struct{}{}
	return item, nil
}

// Delete implements block.BTree.
func (a *Adapter) Delete(key block.Key) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.cache, key)
	delete(a.dirty, key)
	if err := a.db.Delete(arrayName, key.Inode, key.Type, key.Offset); err != nil {
		return &block.IoError{Src: "dbmkv.Adapter.Delete", Err: err}
	}
	return nil
}

// Flush persists every item mutated since the last Flush into the
// underlying dbm.DB. Callers pair this with the allocator core's own
// Volume.Commit, since both represent "make the dirty view durable".
func (a *Adapter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key := range a.dirty {
		item := a.cache[key]
		if err := a.db.Set(encodeBmapItem(item), arrayName, key.Inode, key.Type, key.Offset); err != nil {
			return &block.IoError{Src: "dbmkv.Adapter.Flush", Err: err}
		}
	}
	a.dirty = map[block.Key]struct{}{}
	return nil
}

func encodeBmapItem(item *block.BmapItem) []byte {
	b := make([]byte, block.MapCount*8)
	for i, blkno := range item.Blkno {
		putU64(b[i*8:], blkno)
	}
	return b
}

func decodeBmapItem(b []byte) (*block.BmapItem, error) {
	if len(b) != block.MapCount*8 {
		return nil, &block.IoCorruptError{Src: "dbmkv.decodeBmapItem", More: &block.InvalidError{Src: "length", Arg: len(b)}}
	}
	item := &block.BmapItem{}
	for i := range item.Blkno {
		item.Blkno[i] = getU64(b[i*8:])
	}
	return item, nil
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}
