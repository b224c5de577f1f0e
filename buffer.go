package ecs

import (
	"unsafe"

	"github.com/rs/zerolog"
)

// CommandBuffer is a thread-local, append-only encoder for deferred
// structural mutations plus user-defined extension events. A producer
// thread acquires one from a CommandPool, encodes freely without ever
// touching the Store, and releases it; a single consumer thread later
// calls ExecuteImmediate to apply it.
//
// Every internal stream (tags, args, data, reserved handles) is a
// fixed-capacity slice sized at construction; once full, encoding
// calls return ErrCmdBufOverflow and poison the buffer.
type CommandBuffer struct {
	store *Store

	tags []cmdTag
	args []uint64
	data []byte

	reserved    []Entity
	reservedCap int

	boundEntity    Entity
	hasBinding     bool
	boundDestroyed bool

	poisoned bool
	log      zerolog.Logger
}

func newCommandBuffer(store *Store, opts Options, log *zerolog.Logger) (*CommandBuffer, error) {
	cmds := opts.BufferCmds
	reservedCap := opts.reservedEntities()
	cb := &CommandBuffer{
		store:       store,
		tags:        make([]cmdTag, 0, 2*cmds),
		args:        make([]uint64, 0, 3*cmds),
		data:        make([]byte, 0, cmds*opts.BufferBytesPerCmd+MaxAlign),
		reserved:    make([]Entity, 0, reservedCap),
		reservedCap: reservedCap,
		log:         logger(log),
	}
	if err := cb.refillReserved(); err != nil {
		return nil, err
	}
	return cb, nil
}

func (cb *CommandBuffer) refillReserved() error {
	for len(cb.reserved) < cb.reservedCap {
		e, err := cb.store.ReserveImmediate()
		if err != nil {
			return err
		}
		cb.reserved = append(cb.reserved, e)
	}
	return nil
}

// Close destroys every still-held pre-reserved handle before the
// buffer's arrays become garbage, so a buffer that is discarded mid-use
// never leaks live-but-invisible entities.
func (cb *CommandBuffer) Close() {
	for _, e := range cb.reserved {
		cb.store.DestroyImmediate(e)
	}
	cb.reserved = nil
}

func (cb *CommandBuffer) fail() error {
	cb.poisoned = true
	cb.log.Warn().
		Int("tags", len(cb.tags)).
		Int("args", len(cb.args)).
		Int("data", len(cb.data)).
		Msg("command buffer: capacity exceeded, buffer poisoned until Clear")
	return ErrCmdBufOverflow
}

func (cb *CommandBuffer) pushTag(t cmdTag) error {
	if len(cb.tags) == cap(cb.tags) {
		return cb.fail()
	}
	cb.tags = append(cb.tags, t)
	return nil
}

func (cb *CommandBuffer) pushArg(a uint64) error {
	if len(cb.args) == cap(cb.args) {
		return cb.fail()
	}
	cb.args = append(cb.args, a)
	return nil
}

func (cb *CommandBuffer) pushData(b []byte, align int) error {
	aligned := encodeAlign(len(cb.data), align)
	pad := aligned - len(cb.data)
	if aligned+len(b) > cap(cb.data) {
		return cb.fail()
	}
	for i := 0; i < pad; i++ {
		cb.data = append(cb.data, 0)
	}
	cb.data = append(cb.data, b...)
	return nil
}

// bindEntity emits bind_entity unless e is already the cached binding.
func (cb *CommandBuffer) bindEntity(e Entity) error {
	if cb.hasBinding && cb.boundEntity == e {
		return nil
	}
	if err := cb.pushTag(tagBindEntity); err != nil {
		return err
	}
	if err := cb.pushArg(e.Pack()); err != nil {
		return err
	}
	cb.hasBinding = true
	cb.boundEntity = e
	cb.boundDestroyed = false
	return nil
}

// Reserve pops a handle from the buffer's pre-reserved list, letting a
// producer thread mint entities without synchronizing with the store.
// Returns ErrCmdBufOverflow, and poisons the buffer, once the list is
// exhausted.
func (cb *CommandBuffer) Reserve() (Entity, error) {
	n := len(cb.reserved)
	if n == 0 {
		if cb.poisoned {
			return None, ErrCmdBufOverflow
		}
		return None, cb.fail()
	}
	n--
	e := cb.reserved[n]
	cb.reserved = cb.reserved[:n]
	return e, nil
}

// Destroy encodes a destroy for e. Any further Add/Remove for the same
// cached binding is silently elided, matching the codec's "operations
// on a destroyed binding are dropped" rule.
func (cb *CommandBuffer) Destroy(e Entity) error {
	if cb.poisoned {
		return errBufferPoisoned
	}
	if err := cb.bindEntity(e); err != nil {
		return err
	}
	if cb.boundDestroyed {
		return nil
	}
	cb.boundDestroyed = true
	return cb.pushTag(tagDestroy)
}

func interned[T any](value T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&value)), unsafe.Sizeof(value))
}

// AddVal encodes e gaining component T by value, copying value into the
// buffer's data stream.
func AddVal[T any](cb *CommandBuffer, e Entity, value T) error {
	if cb.poisoned {
		return errBufferPoisoned
	}
	if err := cb.bindEntity(e); err != nil {
		return err
	}
	if cb.boundDestroyed {
		return nil
	}
	d := Register[T]()
	if err := cb.pushTag(tagAddVal); err != nil {
		return err
	}
	if err := cb.pushArg(uint64(d.Flag())); err != nil {
		return err
	}
	return cb.pushData(interned(value), int(d.Align()))
}

// AddPtr encodes e gaining component T by reference: only ptr's address
// is recorded. The caller must keep *ptr alive and unchanged until the
// buffer executes.
func AddPtr[T any](cb *CommandBuffer, e Entity, ptr *T) error {
	if cb.poisoned {
		return errBufferPoisoned
	}
	if err := cb.bindEntity(e); err != nil {
		return err
	}
	if cb.boundDestroyed {
		return nil
	}
	d := Register[T]()
	if err := cb.pushTag(tagAddPtr); err != nil {
		return err
	}
	if err := cb.pushArg(uint64(d.Flag())); err != nil {
		return err
	}
	return cb.pushArg(uint64(uintptr(unsafe.Pointer(ptr))))
}

// Add encodes e gaining component T by value. It is an alias for
// AddVal: by-value is the default policy, with AddPtr available when a
// caller wants to avoid the copy.
func Add[T any](cb *CommandBuffer, e Entity, value T) error {
	return AddVal(cb, e, value)
}

// Remove encodes e losing component T.
func Remove[T any](cb *CommandBuffer, e Entity) error {
	if cb.poisoned {
		return errBufferPoisoned
	}
	if err := cb.bindEntity(e); err != nil {
		return err
	}
	if cb.boundDestroyed {
		return nil
	}
	f := Register[T]().Flag()
	if err := cb.pushTag(tagRemove); err != nil {
		return err
	}
	return cb.pushArg(uint64(f))
}

// ExtVal encodes a standalone, entity-independent event payload by
// value. Extension commands clear the cached entity binding.
func ExtVal[T any](cb *CommandBuffer, value T) error {
	if cb.poisoned {
		return errBufferPoisoned
	}
	cb.hasBinding = false
	d := Register[T]()
	if err := cb.pushTag(tagExtVal); err != nil {
		return err
	}
	if err := cb.pushArg(uint64(d.Flag())); err != nil {
		return err
	}
	return cb.pushData(interned(value), int(d.Align()))
}

// ExtPtr encodes a standalone event payload by reference.
func ExtPtr[T any](cb *CommandBuffer, ptr *T) error {
	if cb.poisoned {
		return errBufferPoisoned
	}
	cb.hasBinding = false
	d := Register[T]()
	if err := cb.pushTag(tagExtPtr); err != nil {
		return err
	}
	if err := cb.pushArg(uint64(d.Flag())); err != nil {
		return err
	}
	return cb.pushArg(uint64(uintptr(unsafe.Pointer(ptr))))
}

// Ext encodes a standalone event payload by value.
func Ext[T any](cb *CommandBuffer, value T) error {
	return ExtVal(cb, value)
}

// WorstCaseUsage returns the highest fill fraction across the buffer's
// four internal streams (tags, args, data, pre-reserved handles
// consumed), useful for the command pool's headroom accounting.
func (cb *CommandBuffer) WorstCaseUsage() float64 {
	frac := func(n, c int) float64 {
		if c == 0 {
			return 0
		}
		return float64(n) / float64(c)
	}
	consumed := cb.reservedCap - len(cb.reserved)
	usage := frac(len(cb.tags), cap(cb.tags))
	if v := frac(len(cb.args), cap(cb.args)); v > usage {
		usage = v
	}
	if v := frac(len(cb.data), cap(cb.data)); v > usage {
		usage = v
	}
	if v := frac(consumed, cb.reservedCap); v > usage {
		usage = v
	}
	return usage
}

// Clear resets all four streams and refills the pre-reserved handle
// list back to capacity, readying the buffer for reuse.
func (cb *CommandBuffer) Clear() error {
	cb.tags = cb.tags[:0]
	cb.args = cb.args[:0]
	cb.data = cb.data[:0]
	cb.hasBinding = false
	cb.boundDestroyed = false
	cb.poisoned = false
	return cb.refillReserved()
}

// Batches decodes the buffer's recorded operations in encoded order,
// for callers that want to dispatch manually instead of calling
// ExecuteImmediate.
func (cb *CommandBuffer) Batches(yield func(Batch) bool) {
	decodeBatches(cb.tags, cb.args, cb.data, yield)
}

// ExecuteImmediate applies every recorded operation in cb to store, in
// encoded order, then clears cb and refills its reserved-handle list.
// onExt, if non-nil, is called for every standalone extension payload;
// extension payloads are otherwise ignored, since the store has no
// built-in notion of what they mean.
func ExecuteImmediate(store *Store, cb *CommandBuffer, onExt func(Batch)) error {
	if cb.poisoned {
		return errBufferPoisoned
	}
	store.bumpPointerGeneration()

	var execErr error
	cb.Batches(func(b Batch) bool {
		switch b.Kind {
		case BatchExt:
			if onExt != nil {
				onExt(b)
			}
		case BatchArch:
			add, remove, destroy := b.Delta()
			if destroy {
				store.DestroyImmediate(b.Entity)
				return true
			}
			ok, err := store.ChangeArchImmediate(b.Entity, add, remove)
			if err != nil {
				execErr = err
				return false
			}
			if !ok {
				return true
			}
			for _, op := range b.Ops {
				if op.Kind != OpAdd || !add.Has(op.Flag) {
					continue
				}
				size := int32(descriptorForFlag(op.Flag).Size())
				if size == 0 {
					continue
				}
				dst := store.GetComponent(b.Entity, op.Flag, size)
				if dst == nil {
					continue
				}
				switch {
				case op.Value != nil:
					copy(unsafe.Slice((*byte)(dst), size), op.Value)
				case op.Ptr != nil:
					copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(op.Ptr), size))
				}
			}
		}
		return true
	})
	if execErr != nil {
		return execErr
	}
	return cb.Clear()
}
