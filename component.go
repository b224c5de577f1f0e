package ecs

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// MaxAlign is the largest alignment a registered component type may
// declare. Chunks are laid out assuming no column needs more than this.
const MaxAlign = 16

// MaxComponentFlags is the compile-time ceiling on the number of
// distinct component types that may ever be registered. It defaults to
// 63 per the storage engine's design, may be raised up to hardFlagLimit+1
// by a host program before any type is registered, and is otherwise
// immutable for the lifetime of the process (descriptors are global).
var MaxComponentFlags = 63

// hardFlagLimit is the number of bits a 4x64 archetype bitset can hold,
// minus one so NoFlag (-1) never aliases a real flag's complement.
const hardFlagLimit = maskWords*bitsPerWord - 1

// Flag is a dense index assigned to a component type on first
// registration. NoFlag means "not yet registered".
type Flag int32

// NoFlag is the zero-value-safe sentinel for an unregistered type.
const NoFlag Flag = -1

// TypeDescriptor is the immutable record the storage engine keeps for
// every component type: its size, its alignment, and (once assigned)
// its dense flag index. Exactly one TypeDescriptor exists per Go type
// for the lifetime of the process; identity is by pointer, which is
// why Register and DescriptorOf always return the same *TypeDescriptor
// for a given T.
type TypeDescriptor struct {
	goType reflect.Type
	size   uintptr
	align  uintptr
	mu     sync.Mutex
	flag   Flag
}

// Size returns the component's size in bytes, as reported by unsafe.Sizeof.
func (d *TypeDescriptor) Size() uintptr { return d.size }

// Align returns the component's required alignment in bytes.
func (d *TypeDescriptor) Align() uintptr { return d.align }

// Flag returns the descriptor's dense flag index, or NoFlag if the
// type has never been registered.
func (d *TypeDescriptor) Flag() Flag {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flag
}

// Registered reports whether Register has ever been called for this type.
func (d *TypeDescriptor) Registered() bool {
	return d.Flag() != NoFlag
}

func (d *TypeDescriptor) String() string {
	return fmt.Sprintf("TypeDescriptor{%s, size=%d, align=%d, flag=%d}", d.goType, d.size, d.align, d.Flag())
}

var (
	registryMu  sync.Mutex
	descriptors = make(map[reflect.Type]*TypeDescriptor, 64)
	nextFlag    Flag
	flagToDesc  [hardFlagLimit + 1]*TypeDescriptor
)

// ResetGlobalRegistry clears every registered component type and flag
// assignment. Intended for test isolation between Store instances that
// would otherwise share process-wide flag numbering.
func ResetGlobalRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	descriptors = make(map[reflect.Type]*TypeDescriptor, 64)
	nextFlag = 0
	flagToDesc = [hardFlagLimit + 1]*TypeDescriptor{}
}

// descriptorFor returns the process-wide TypeDescriptor for T, creating
// an unregistered one on first use. Every call for the same T returns
// the identical pointer.
func descriptorFor[T any]() *TypeDescriptor {
	var zero T
	t := reflect.TypeOf(zero)

	registryMu.Lock()
	defer registryMu.Unlock()
	if d, ok := descriptors[t]; ok {
		return d
	}
	d := &TypeDescriptor{
		goType: t,
		size:   unsafe.Sizeof(zero),
		align:  uintptr(reflect.TypeOf(zero).Align()),
		flag:   NoFlag,
	}
	descriptors[t] = d
	return d
}

// DescriptorOf returns T's process-wide TypeDescriptor without
// registering it. Useful for size/alignment introspection ahead of a
// Register call.
func DescriptorOf[T any]() *TypeDescriptor {
	return descriptorFor[T]()
}

// Register assigns T its dense flag index if it does not already have
// one, and returns its TypeDescriptor. Registration is idempotent: a
// type registered twice keeps its original flag. It panics if T's
// alignment exceeds MaxAlign, or if the flag space is exhausted.
func Register[T any]() *TypeDescriptor {
	d := descriptorFor[T]()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flag != NoFlag {
		return d
	}

	if d.align > MaxAlign {
		panic(fmt.Sprintf("ecs: component %s has alignment %d, exceeds MaxAlign %d", d.goType, d.align, MaxAlign))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	limit := MaxComponentFlags
	if limit > hardFlagLimit+1 {
		limit = hardFlagLimit + 1
	}
	if int(nextFlag) >= limit {
		panic(fmt.Sprintf("ecs: cannot register component %s: maximum number of component flags (%d) reached", d.goType, limit))
	}

	d.flag = nextFlag
	flagToDesc[nextFlag] = d
	nextFlag++
	return d
}

// FlagID returns T's dense flag index. It panics if T has not been
// registered via Register.
func FlagID[T any]() Flag {
	d := descriptorFor[T]()
	f := d.Flag()
	if f == NoFlag {
		panic(fmt.Sprintf("ecs: component type %s not registered", d.goType))
	}
	return f
}

// TryFlagID returns T's dense flag index and whether it has been
// registered, without panicking.
func TryFlagID[T any]() (Flag, bool) {
	f := descriptorFor[T]().Flag()
	return f, f != NoFlag
}

// descriptorForFlag looks up the descriptor that owns a given flag.
// Returns nil if the flag was never assigned.
func descriptorForFlag(f Flag) *TypeDescriptor {
	if f < 0 || int(f) > hardFlagLimit {
		return nil
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	return flagToDesc[f]
}
