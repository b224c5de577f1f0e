package ecs

import (
	"unsafe"
)

// chunkList is the set of chunks backing one archetype. Chunks that
// still have free rows are threaded onto a separate availability
// sublist so appendRow never has to scan full chunks to find room.
type chunkList struct {
	arch   Archetype
	layout columnLayout

	head, tail *chunkHeader // full chunk-list, in acquisition order
	availHead  *chunkHeader // chunks with len < capacity

	pool *chunkPool
}

func newChunkList(arch Archetype, pool *chunkPool) (*chunkList, error) {
	lay, err := computeColumnLayout(arch, pool.chunkSize)
	if err != nil {
		return nil, err
	}
	return &chunkList{
		arch:   arch,
		layout: lay,
		pool:   pool,
	}, nil
}

func (l *chunkList) linkTail(h *chunkHeader) {
	h.prevInList = l.tail
	h.nextInList = nil
	if l.tail != nil {
		l.tail.nextInList = h
	} else {
		l.head = h
	}
	l.tail = h
}

func (l *chunkList) unlink(h *chunkHeader) {
	if h.prevInList != nil {
		h.prevInList.nextInList = h.nextInList
	} else {
		l.head = h.nextInList
	}
	if h.nextInList != nil {
		h.nextInList.prevInList = h.prevInList
	} else {
		l.tail = h.prevInList
	}
	h.prevInList, h.nextInList = nil, nil
}

func (l *chunkList) linkAvailable(h *chunkHeader) {
	if h.inAvailability {
		return
	}
	h.prevAvail = nil
	h.nextAvail = l.availHead
	if l.availHead != nil {
		l.availHead.prevAvail = h
	}
	l.availHead = h
	h.inAvailability = true
}

// linkAvailableAfterHead inserts h into the availability list immediately
// behind the current head instead of in front of it. A chunk that just
// lost a row was, a moment ago, full; putting it ahead of an existing
// partially-filled chunk would make it the next fill target and leave
// the older chunk fragmented, so it waits its turn instead.
func (l *chunkList) linkAvailableAfterHead(h *chunkHeader) {
	if h.inAvailability {
		return
	}
	head := l.availHead
	if head == nil {
		h.prevAvail, h.nextAvail = nil, nil
		l.availHead = h
		h.inAvailability = true
		return
	}
	h.prevAvail = head
	h.nextAvail = head.nextAvail
	if head.nextAvail != nil {
		head.nextAvail.prevAvail = h
	}
	head.nextAvail = h
	h.inAvailability = true
}

func (l *chunkList) unlinkAvailable(h *chunkHeader) {
	if !h.inAvailability {
		return
	}
	if h.prevAvail != nil {
		h.prevAvail.nextAvail = h.nextAvail
	} else {
		l.availHead = h.nextAvail
	}
	if h.nextAvail != nil {
		h.nextAvail.prevAvail = h.prevAvail
	}
	h.prevAvail, h.nextAvail = nil, nil
	h.inAvailability = false
}

// append reserves a row for entityIdx, acquiring a fresh chunk from the
// pool if every existing chunk is full. Returns the chunk and row.
func (l *chunkList) append(entityIdx uint32) (*chunkHeader, int32, error) {
	h := l.availHead
	if h == nil {
		acquired, err := l.pool.acquire(l, &l.layout)
		if err != nil {
			return nil, 0, err
		}
		l.linkTail(acquired)
		l.linkAvailable(acquired)
		h = acquired
	}

	row := h.len
	h.setEntityIndexRow(row, entityIdx)
	h.len++
	if h.full() {
		l.unlinkAvailable(h)
	}
	return h, row, nil
}

// swapRemove removes row from chunk h, moving the last row of h's last
// occupied slot into the hole to keep storage dense. It returns the
// entity-index value of the row that got moved into the hole, or
// (0, false) if the removed row was already the chunk's last row.
func (l *chunkList) swapRemove(h *chunkHeader, row int32) (movedEntityIdx uint32, moved bool) {
	last := h.len - 1
	wasFull := h.full()

	if row != last {
		movedIdx := h.entityIndexRow(last)
		l.copyRow(h, last, h, row)
		h.setEntityIndexRow(row, movedIdx)
		movedEntityIdx, moved = movedIdx, true
	}

	h.len--

	if wasFull {
		l.linkAvailableAfterHead(h)
	}
	if h.len == 0 {
		l.unlinkAvailable(h)
		l.unlink(h)
		l.pool.release(h)
	}
	return movedEntityIdx, moved
}

// copyRow copies every component column's bytes for one row between
// two chunks of the same archetype (src and dst may be the same chunk).
func (l *chunkList) copyRow(src *chunkHeader, srcRow int32, dst *chunkHeader, dstRow int32) {
	for _, f := range l.arch.Flags() {
		d := descriptorForFlag(f)
		size := int32(d.Size())
		if size == 0 {
			continue
		}
		sp := src.rowPointer(f, srcRow, size)
		dp := dst.rowPointer(f, dstRow, size)
		copy(unsafe.Slice((*byte)(dp), size), unsafe.Slice((*byte)(sp), size))
	}
}
