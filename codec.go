package ecs

import "unsafe"

// cmdTag identifies one subcommand in a command buffer's tag stream.
type cmdTag uint8

const (
	tagBindEntity cmdTag = iota
	tagDestroy
	tagAddVal
	tagAddPtr
	tagRemove
	tagExtVal
	tagExtPtr
)

// OpKind distinguishes the two structural operations a batch can carry.
type OpKind uint8

const (
	OpAdd OpKind = iota
	OpRemove
)

// Op is one decoded structural operation within an archetype-change
// batch. Value is non-nil only for OpAdd decoded from add_val (it
// points into the buffer's data stream); Ptr is non-nil only for OpAdd
// decoded from add_ptr.
type Op struct {
	Kind  OpKind
	Flag  Flag
	Value []byte
	Ptr   unsafe.Pointer
}

// BatchKind distinguishes the two shapes a decoded Batch can take.
type BatchKind uint8

const (
	BatchArch BatchKind = iota // a bound entity's coalesced add/remove/destroy ops
	BatchExt                   // a standalone, entity-independent extension payload
)

// Batch is one group of subcommands sharing a binding, or a single
// standalone extension payload. It is produced by decodeBatches in
// encoded order.
type Batch struct {
	Kind BatchKind

	Entity    Entity
	Destroyed bool
	Ops       []Op

	ExtFlag Flag
	ExtData []byte
	ExtPtr  unsafe.Pointer
}

// Delta coalesces an archetype-change batch's ops into the net set of
// flags to add and remove, and whether the entity should be destroyed
// instead. A destroy makes the add/remove sets moot: destroy and skip
// further processing of the batch.
func (b Batch) Delta() (add, remove Archetype, destroy bool) {
	if b.Destroyed {
		return EmptyArchetype, EmptyArchetype, true
	}
	for _, op := range b.Ops {
		switch op.Kind {
		case OpAdd:
			add = add.WithFlag(op.Flag)
			remove = remove.WithoutFlag(op.Flag)
		case OpRemove:
			remove = remove.WithFlag(op.Flag)
			add = add.WithoutFlag(op.Flag)
		}
	}
	return add, remove, false
}

// encodeAlign advances a data-stream length to the next multiple of
// align, matching add_val/ext_val's "align the data cursor to
// alignof(T)" rule.
func encodeAlign(n int, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// decodeBatches decodes a fully-written (tags, args, data) triple into
// a sequence of Batch values, calling yield for each in encoded order.
// yield returning false stops decoding early.
func decodeBatches(tags []cmdTag, args []uint64, data []byte, yield func(Batch) bool) {
	argPos, dataPos := 0, 0
	var cur *Batch
	hasCur := false

	flush := func() bool {
		if hasCur {
			ok := yield(*cur)
			hasCur = false
			cur = nil
			if !ok {
				return false
			}
		}
		return true
	}

	for _, t := range tags {
		switch t {
		case tagBindEntity:
			if !flush() {
				return
			}
			e := Unpack(args[argPos])
			argPos++
			cur = &Batch{Kind: BatchArch, Entity: e}
			hasCur = true

		case tagDestroy:
			if hasCur {
				cur.Destroyed = true
				cur.Ops = nil
			}

		case tagAddVal, tagRemove:
			f := Flag(args[argPos])
			argPos++
			if t == tagRemove {
				if hasCur && !cur.Destroyed {
					cur.Ops = append(cur.Ops, Op{Kind: OpRemove, Flag: f})
				}
				continue
			}
			d := descriptorForFlag(f)
			size := int(d.Size())
			start := encodeAlign(dataPos, int(d.Align()))
			val := data[start : start+size]
			dataPos = start + size
			if hasCur && !cur.Destroyed {
				cur.Ops = append(cur.Ops, Op{Kind: OpAdd, Flag: f, Value: val})
			}

		case tagAddPtr:
			f := Flag(args[argPos])
			ptr := args[argPos+1]
			argPos += 2
			if hasCur && !cur.Destroyed {
				cur.Ops = append(cur.Ops, Op{Kind: OpAdd, Flag: f, Ptr: unsafe.Pointer(uintptr(ptr))})
			}

		case tagExtVal:
			if !flush() {
				return
			}
			f := Flag(args[argPos])
			argPos++
			d := descriptorForFlag(f)
			size := int(d.Size())
			start := encodeAlign(dataPos, int(d.Align()))
			val := data[start : start+size]
			dataPos = start + size
			if !yield(Batch{Kind: BatchExt, ExtFlag: f, ExtData: val}) {
				return
			}

		case tagExtPtr:
			if !flush() {
				return
			}
			f := Flag(args[argPos])
			ptr := args[argPos+1]
			argPos += 2
			if !yield(Batch{Kind: BatchExt, ExtFlag: f, ExtPtr: unsafe.Pointer(uintptr(ptr))}) {
				return
			}
		}
	}
	flush()
}
