// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

// Key types, per spec §6's key taxonomy: each B-tree key is
// (inode_id, type, offset).
const (
	KeyInode byte = iota
	KeyXattr
	KeyDirent
	KeyLinkBackref
	KeySymlink
	KeyExtent
	KeyBmap
)

// Key identifies one B-tree item.
type Key struct {
	Inode  uint64
	Type   byte
	Offset uint64
}

// BmapItem is a block-map item: MapCount physical block numbers, zero
// meaning "no mapping", for MapCount consecutive logical blocks starting at
// key.Offset<<MapShift.
type BmapItem struct {
	Blkno [MapCount]uint64
}

// BTree is the keyed mapping-item store this package consumes as an
// external collaborator (spec §1: the B-tree index is out of scope; only
// this narrow contract is consumed). Lookup returns (nil, false) for a
// missing key rather than an error. Update creates a writable view of an
// existing item (the caller mutates the returned pointer and the change is
// visible to subsequent Lookup/Update calls in the same transaction, same
// as a dirtied block); Insert creates a brand new, zeroed item and fails if
// one already exists at key.
type BTree interface {
	Lookup(key Key) (item *BmapItem, ok bool, err error)
	Update(key Key) (item *BmapItem, err error)
	Insert(key Key) (item *BmapItem, err error)
	Delete(key Key) error
}

// bmapKey returns the B-tree key for the item covering logical block
// iblock of inode ino.
func bmapKey(ino uint64, iblock uint64) Key {
	return Key{Inode: ino, Type: KeyBmap, Offset: iblock >> MapShift}
}
