// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

// Trans is the transaction controller external collaborator (spec §1, §5).
// Hold acquires the reader side of the commit barrier (allocations and
// mappings may proceed while it is held); Release drops it. Commit/abort
// semantics, and the reader/writer barrier's writer side used at commit
// time, live entirely outside this package.
type Trans interface {
	Hold()
	Release()
}

// noopTrans is used by callers (mainly tests) that don't need a real
// transaction controller.
type noopTrans struct{}

func (noopTrans) Hold()    {}
func (noopTrans) Release() {}
