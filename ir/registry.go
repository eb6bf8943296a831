package ir

import (
	"errors"
	"fmt"
	"strconv"
)

// MaxTypeDepth bounds struct/array nesting. Deeper types are rejected
// rather than walked.
const MaxTypeDepth = 32

var (
	// ErrTypeTooDeep is returned when a type nests deeper than MaxTypeDepth.
	ErrTypeTooDeep = errors.New("type nesting exceeds depth limit")

	// ErrInvalidTypeHandle is returned for handles outside the arena.
	ErrInvalidTypeHandle = errors.New("invalid type handle")
)

// TypeRegistry deduplicates types by structure.
// Two types with the same structure (and, for structs and blocks, the same
// name) share one handle, so handle equality is type equality.
type TypeRegistry struct {
	types   []Type
	typeMap map[string]TypeHandle
	keyBuf  []byte // reusable buffer for building type keys
}

// NewTypeRegistry creates a new type registry for deduplication.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types:   make([]Type, 0, 16),
		typeMap: make(map[string]TypeHandle, 16),
		keyBuf:  make([]byte, 0, 64),
	}
}

// GetOrCreate returns an existing handle for the type if it exists,
// or creates a new one if it's unique.
func (r *TypeRegistry) GetOrCreate(name string, inner TypeInner) TypeHandle {
	key := r.normalizeType(name, inner)

	if handle, exists := r.typeMap[key]; exists {
		return handle
	}

	handle := TypeHandle(len(r.types))
	r.types = append(r.types, Type{
		Name:  name,
		Inner: inner,
	})
	r.typeMap[key] = handle

	return handle
}

// GetTypes returns all registered types.
func (r *TypeRegistry) GetTypes() []Type {
	return r.types
}

// normalizeType creates a unique key for a type based on its structure.
// Uses a reusable byte buffer to avoid fmt.Sprintf allocations for common types.
func (r *TypeRegistry) normalizeType(name string, inner TypeInner) string {
	b := r.keyBuf[:0]

	switch t := inner.(type) {
	case ScalarType:
		b = append(b, "scalar:"...)
		b = strconv.AppendInt(b, int64(t.Kind), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(t.Width), 10)
		r.keyBuf = b
		return string(b)

	case VectorType:
		scalarKey := r.normalizeType("", t.Scalar)
		return "vec:" + strconv.FormatUint(uint64(t.Size), 10) + ":" + scalarKey

	case MatrixType:
		scalarKey := r.normalizeType("", t.Scalar)
		return "mat:" + strconv.FormatUint(uint64(t.Columns), 10) + "x" + strconv.FormatUint(uint64(t.Rows), 10) + ":" + scalarKey

	case ArrayType:
		var sizeKey string
		if t.Size.Constant != nil {
			sizeKey = strconv.FormatUint(uint64(*t.Size.Constant), 10)
		} else {
			sizeKey = "unsized"
		}
		return "array:" + strconv.FormatInt(int64(t.Base), 10) + ":" + sizeKey + ":" + strconv.FormatUint(uint64(t.Stride), 10)

	case StructType:
		return "struct:" + name + membersKey(t.Members)

	case InterfaceType:
		return "block:" + name + membersKey(t.Members)

	case SamplerType:
		return fmt.Sprintf("sampler:%d:%v:%v:%d", t.Dim, t.Arrayed, t.Shadow, t.Kind)

	case ImageType:
		return fmt.Sprintf("image:%d:%v:%v:%d", t.Dim, t.Arrayed, t.Multisampled, t.Kind)

	case AtomicCounterType:
		return "atomic_uint"

	case SubroutineType:
		return "subroutine:" + t.Name

	default:
		return fmt.Sprintf("unknown:%T", inner)
	}
}

func membersKey(members []StructMember) string {
	key := fmt.Sprintf(":%d", len(members))
	for _, m := range members {
		key += fmt.Sprintf(":m(%s,%d,%s,%s,%s,%d)", m.Name, m.Type,
			optKey(m.Offset), optKey(m.Align), optKey(m.MatrixStride), m.Layout)
	}
	return key
}

func optKey(v *uint32) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

// Lookup finds a type by its handle.
func (r *TypeRegistry) Lookup(handle TypeHandle) (Type, bool) {
	if int(handle) >= len(r.types) {
		return Type{}, false
	}
	return r.types[handle], true
}

// Count returns the number of unique types registered.
func (r *TypeRegistry) Count() int {
	return len(r.types)
}

// Importer copies types from a foreign arena (one shader's Types) into a
// registry, translating handles. Results are memoized per source handle.
type Importer struct {
	registry *TypeRegistry
	source   []Type
	memo     map[TypeHandle]TypeHandle
}

// NewImporter returns an importer from the given arena into r.
func (r *TypeRegistry) NewImporter(source []Type) *Importer {
	return &Importer{
		registry: r,
		source:   source,
		memo:     make(map[TypeHandle]TypeHandle, len(source)),
	}
}

// Import translates a source handle into a registry handle.
func (im *Importer) Import(handle TypeHandle) (TypeHandle, error) {
	return im.importType(handle, 0)
}

func (im *Importer) importType(handle TypeHandle, depth int) (TypeHandle, error) {
	if h, ok := im.memo[handle]; ok {
		return h, nil
	}
	if depth > MaxTypeDepth {
		return 0, ErrTypeTooDeep
	}
	if int(handle) >= len(im.source) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTypeHandle, handle)
	}

	typ := im.source[handle]
	inner := typ.Inner
	switch t := typ.Inner.(type) {
	case ArrayType:
		base, err := im.importType(t.Base, depth+1)
		if err != nil {
			return 0, err
		}
		t.Base = base
		inner = t
	case StructType:
		members, err := im.importMembers(t.Members, depth)
		if err != nil {
			return 0, err
		}
		inner = StructType{Members: members}
	case InterfaceType:
		members, err := im.importMembers(t.Members, depth)
		if err != nil {
			return 0, err
		}
		inner = InterfaceType{Members: members}
	case nil:
		return 0, fmt.Errorf("type %d has nil inner type", handle)
	}

	h := im.registry.GetOrCreate(typ.Name, inner)
	im.memo[handle] = h
	return h, nil
}

func (im *Importer) importMembers(members []StructMember, depth int) ([]StructMember, error) {
	out := make([]StructMember, len(members))
	for i, m := range members {
		h, err := im.importType(m.Type, depth+1)
		if err != nil {
			return nil, err
		}
		m.Type = h
		out[i] = m
	}
	return out, nil
}
