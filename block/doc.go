// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package block implements the block allocation and file-data mapping core of
a copy-on-write, block based file system.

The package solves two tightly coupled problems:

 1. A persistent, hierarchical buddy allocator servicing block allocation
    requests while respecting the invariant that no allocation may overwrite
    a block still referenced by the last committed (stable) transaction,
    even after that block has been "freed" in the current (dirty)
    transaction.

 2. File data block mapping under copy-on-write: for each dirty file page,
    guarantee its data lands in a freshly allocated block unreferenced by
    the stable image, reusing a per-transaction allocation exactly when the
    current mapping was already allocated in the live transaction.

Regions

Any device block number belongs to exactly one of three regions:

	Pair   [0, BMBlkno)                     two fixed commit-pair blocks
	Bitmap [BMBlkno, firstBlkno)             self-host bitmap block(s) plus
	                                         the buddy_blocks slots the
	                                         self-host bitmap allocator hands
	                                         out
	Buddy  [firstBlkno, total_blocks)        B-tree index blocks and file
	                                         data extents

where firstBlkno = BMBlkno + BMNr + buddy_blocks. See region.go.

Dual views

Every Volume carries two simultaneous views of its allocator state: the
dirty (in-flight, mutable) view and the stable (last committed, read-only
from this package's perspective) view. An allocation is valid only if the
returned block is clear -- allocated or unknown -- in both views. Freeing a
block only ever mutates the dirty view; the dual-view constraint does not
apply to free, since freeing in the dirty view cannot itself cause an
overwrite of stable data. See bitmap.go and buddy.go.

File mapping

Block-map items translate (inode, logical_block) to a physical block
number. They are stored by an external B-tree keyed store (the BTree
interface in btree.go) which this package treats as an out-of-scope
collaborator, same as the transaction controller (trans.go) and the page
cache glue it is driven from (writeback.go).
*/
package block
