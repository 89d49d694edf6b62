// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

// memBTree is a trivial in-memory block.BTree for tests: a plain map, no
// persistence, no structural transactions. It exercises the same
// existence/mutation contract dbmkv.Adapter provides.
type memBTree struct {
	m map[Key]*BmapItem
}

func newMemBTree() *memBTree { return &memBTree{m: map[Key]*BmapItem{}} }

func (t *memBTree) Lookup(key Key) (*BmapItem, bool, error) {
	item, ok := t.m[key]
	return item, ok, nil
}

func (t *memBTree) Update(key Key) (*BmapItem, error) {
	item, ok := t.m[key]
	if !ok {
		return nil, &InvalidError{Src: "memBTree.Update", Arg: key}
	}
	return item, nil
}

func (t *memBTree) Insert(key Key) (*BmapItem, error) {
	if _, ok := t.m[key]; ok {
		return nil, &InvalidError{Src: "memBTree.Insert", Arg: key}
	}
	item := &BmapItem{}
	t.m[key] = item
	return item, nil
}

func (t *memBTree) Delete(key Key) error {
	delete(t.m, key)
	return nil
}

// newTestVolume returns a Mounted Volume wired to a fresh memBTree and
// noopTrans. totalBlocks is the whole device size, Pair and Bitmap regions
// included: the 1024 most tests pass leaves 1024-FirstBlkno = 765 data
// blocks.
func newTestVolume(t interface {
	Fatal(...interface{})
}, totalBlocks uint64) (*Volume, *memBTree) {
	bt := newMemBTree()
	v, err := NewVolume(NewMemFiler(), Options{TotalBlocks: totalBlocks}, bt, nil, noopLogger{})
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Mount(); err != nil {
		t.Fatal(err)
	}
	return v, bt
}
