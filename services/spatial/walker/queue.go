// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import "github.com/AleutianAI/AleutianSpatial/services/spatial/graph"

// queueItem is one scheduled visit: the element plus the pending-exit
// frame of the element whose entry enqueued it. Spawn seeds and targets
// enqueued during an exit phase have no parent frame.
type queueItem struct {
	ref    graph.Ref
	parent *frame
}

// frame tracks one element whose entry enqueued targets and whose exit
// is therefore deferred until its subtree completes.
type frame struct {
	ref    graph.Ref
	parent *frame

	// pending counts directly enqueued targets that have not completed
	// both phases yet.
	pending int

	// leafExits collects direct children that completed without a frame
	// of their own, in completion order. Their exits run during this
	// frame's unwind, before the frame's own exit.
	leafExits []graph.Ref
}

// visitQueue is the walker's schedule of elements to visit.
type visitQueue struct {
	items []queueItem
}

// insert places a contiguous block of items at the given position.
//
// Description:
//
//	Without an explicit index the block appends (breadth-first
//	scheduling). An explicit index follows list-insert semantics:
//	0 prepends (depth-first), a negative index counts from the tail
//	(-1 inserts before the last item), and out-of-range indices clamp
//	to the ends.
//
// Inputs:
//
//	items - block to insert, kept contiguous.
//	index - target position when at is true.
//	at - whether an explicit index was given.
func (q *visitQueue) insert(items []queueItem, index int, at bool) {
	if len(items) == 0 {
		return
	}
	if !at {
		q.items = append(q.items, items...)
		return
	}
	n := len(q.items)
	if index < 0 {
		index += n
		if index < 0 {
			index = 0
		}
	} else if index > n {
		index = n
	}

	q.items = append(q.items, make([]queueItem, len(items))...)
	copy(q.items[index+len(items):], q.items[index:n])
	copy(q.items[index:], items)
}

// pop removes and returns the front item.
func (q *visitQueue) pop() (queueItem, bool) {
	if len(q.items) == 0 {
		return queueItem{}, false
	}
	item := q.items[0]
	q.items[0] = queueItem{}
	q.items = q.items[1:]
	return item, true
}

// len returns the number of scheduled visits.
func (q *visitQueue) len() int {
	return len(q.items)
}

// clear drops every scheduled visit.
func (q *visitQueue) clear() {
	q.items = nil
}
