package ecs

import "unsafe"

// entityIndexSize is the width of one slot in a chunk's entity-index
// array: a bare uint32 row->handle-table-index mapping. Reconstructing
// the full Entity (adding back the generation) is the handle table's
// job, since it is the single owner of (chunk, row) <-> generation.
const entityIndexSize = 4
const entityIndexAlign = 4

// columnLayout is computed once per archetype, when its chunk list is
// created, and copied into every chunk reserved for that list. Columns
// are ordered by descending alignment so padding between them is
// minimal and the layout is fully determined by the archetype's bit
// pattern, independent of the order types happened to be registered in.
type columnLayout struct {
	capacity   int32
	rowBytes   int32               // total bytes spent per row, including the entity index
	entityOff  int32               // byte offset of the entity-index array
	compOffset [hardFlagLimit + 1]int32 // byte offset per flag; -1 means absent from this archetype
}

func alignUp(off, align int32) int32 {
	if align <= 1 {
		return off
	}
	return (off + align - 1) &^ (align - 1)
}

type layoutItem struct {
	flag  Flag // NoFlag for the entity-index pseudo-column
	align int32
	size  int32
}

// computeColumnLayout derives the capacity and byte offsets for an
// archetype's chunks. It returns ErrChunkOverflow if even a single row
// does not fit in a chunk of chunkSize bytes.
func computeColumnLayout(arch Archetype, chunkSize int) (columnLayout, error) {
	flags := arch.Flags()
	items := make([]layoutItem, 0, len(flags)+1)
	items = append(items, layoutItem{flag: NoFlag, align: entityIndexAlign, size: entityIndexSize})
	for _, f := range flags {
		d := descriptorForFlag(f)
		items = append(items, layoutItem{flag: f, align: int32(d.Align()), size: int32(d.Size())})
	}
	// Descending alignment; ties break by ascending flag (NoFlag == -1
	// sorts first) so the order is a pure function of the archetype.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && lessLayout(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	bytesPerRow := int32(0)
	for _, it := range items {
		bytesPerRow += it.size
	}
	if bytesPerRow == 0 {
		return columnLayout{}, ErrChunkOverflow
	}

	n := int32(chunkSize) / bytesPerRow
	for n > 0 {
		var lay columnLayout
		lay.compOffset = [hardFlagLimit + 1]int32{}
		for i := range lay.compOffset {
			lay.compOffset[i] = -1
		}
		offset := int32(0)
		fits := true
		for _, it := range items {
			offset = alignUp(offset, it.align)
			if it.flag == NoFlag {
				lay.entityOff = offset
			} else {
				lay.compOffset[it.flag] = offset
			}
			offset += it.size * n
			if offset > int32(chunkSize) {
				fits = false
				break
			}
		}
		if fits {
			lay.capacity = n
			lay.rowBytes = bytesPerRow
			return lay, nil
		}
		n--
	}
	return columnLayout{}, ErrChunkOverflow
}

func lessLayout(a, b layoutItem) bool {
	if a.align != b.align {
		return a.align > b.align
	}
	return a.flag < b.flag
}

// chunkHeader is the metadata the store keeps for one chunk. It is an
// ordinary Go-managed struct, kept out of the chunk-size-aligned raw
// byte arena so the chunk's data area never has to share space with
// GC-visible pointers; the arena holds only the entity-index array and
// component columns, which is the part the pointer-recovery trick
// (round a component address down to chunk-size alignment) needs.
type chunkHeader struct {
	index ChunkIndex
	raw   []byte // chunk-size-aligned region: entity-index array + columns
	list  *chunkList
	lay   *columnLayout

	prevInList, nextInList *chunkHeader
	prevAvail, nextAvail   *chunkHeader
	inAvailability         bool

	len int32
}

func (c *chunkHeader) entityIndexRow(row int32) uint32 {
	off := c.lay.entityOff + row*entityIndexSize
	return *(*uint32)(unsafe.Pointer(&c.raw[off]))
}

func (c *chunkHeader) setEntityIndexRow(row int32, idx uint32) {
	off := c.lay.entityOff + row*entityIndexSize
	*(*uint32)(unsafe.Pointer(&c.raw[off])) = idx
}

// columnBytes returns the full (capacity-sized) byte slice for flag's
// column, or nil if the archetype doesn't carry that component.
func (c *chunkHeader) columnBytes(f Flag, size int32) []byte {
	off := c.lay.compOffset[f]
	if off < 0 {
		return nil
	}
	length := size * c.lay.capacity
	if length == 0 {
		return c.raw[off:off]
	}
	return c.raw[off : off+length]
}

// rowPointer returns a pointer to row's value in flag's column. size
// may be 0, in which case the returned pointer is the chunk's base
// address: valid and stable (though dereferencing zero bytes) as
// required by the zero-sized-component invariant.
func (c *chunkHeader) rowPointer(f Flag, row int32, size int32) unsafe.Pointer {
	off := c.lay.compOffset[f]
	if off < 0 {
		return nil
	}
	if size == 0 {
		// A zero-sized column can start exactly at the end of the chunk.
		return unsafe.Pointer(&c.raw[0])
	}
	return unsafe.Pointer(&c.raw[off+row*size])
}

func (c *chunkHeader) full() bool {
	return c.len >= c.lay.capacity
}
