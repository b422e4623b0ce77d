// Package tree models the typed SSA program form handed to the
// lowering converter: types with layout, expressions, statements, and
// functions whose basic blocks carry phi nodes and terminators.
package tree

import "github.com/holiman/uint256"

// TypeKind discriminates the type nodes.
type TypeKind uint8

const (
	Void TypeKind = iota
	Integer
	Boolean
	Float
	Pointer
	Record
	Union
	Array
	Vector
	Complex
)

// Field is one member of a record or union. Offset is in bits from the
// start of the enclosing aggregate. Bit-fields carry their width in
// BitSize; for ordinary fields BitSize is the full field precision.
type Field struct {
	Name     string
	Type     *Type
	Offset   uint64
	BitField bool
	BitSize  uint32
}

// Type describes a source type with enough layout information for
// byte-granular lowering: scalar precision, storage size, element
// types, and record fields with bit offsets.
type Type struct {
	Kind     TypeKind
	Bits     uint32 // scalar precision
	Unsigned bool
	Bytes    uint64 // storage size
	Align    uint64 // alignment in bytes, power of two
	Elem     *Type  // pointer, array, vector, complex element
	NumElems uint64 // array and vector length
	Fields   []Field
}

// IntType returns an integer type of the given precision. Storage is
// rounded up to whole bytes.
func IntType(bits uint32, unsigned bool) *Type {
	bytes := uint64((bits + 7) / 8)
	return &Type{Kind: Integer, Bits: bits, Unsigned: unsigned, Bytes: bytes, Align: bytes}
}

// BoolType returns a boolean with the given declared precision.
// Precision above one bit happens for e.g. _Bool bit-fields.
func BoolType(bits uint32) *Type {
	bytes := uint64((bits + 7) / 8)
	return &Type{Kind: Boolean, Bits: bits, Unsigned: true, Bytes: bytes, Align: bytes}
}

// FloatType returns an IEEE binary float of the given width.
func FloatType(bits uint32) *Type {
	return &Type{Kind: Float, Bits: bits, Bytes: uint64(bits / 8), Align: uint64(bits / 8)}
}

// PointerType returns a pointer to elem. The width is the target
// pointer width and must match the module configuration.
func PointerType(elem *Type, bits uint32) *Type {
	return &Type{Kind: Pointer, Bits: bits, Unsigned: true, Bytes: uint64(bits / 8), Align: uint64(bits / 8), Elem: elem}
}

// ArrayType returns an array of n elements.
func ArrayType(elem *Type, n uint64) *Type {
	return &Type{Kind: Array, Bytes: elem.Bytes * n, Align: elem.Align, Elem: elem, NumElems: n}
}

// VectorType returns a vector of n scalar elements.
func VectorType(elem *Type, n uint64) *Type {
	return &Type{
		Kind:     Vector,
		Bits:     elem.Bits * uint32(n),
		Unsigned: elem.Unsigned,
		Bytes:    elem.Bytes * n,
		Align:    elem.Bytes * n,
		Elem:     elem,
		NumElems: n,
	}
}

// ComplexType returns a complex type over a scalar element.
func ComplexType(elem *Type) *Type {
	return &Type{Kind: Complex, Bits: elem.Bits * 2, Bytes: elem.Bytes * 2, Align: elem.Align, Elem: elem}
}

func maxFieldAlign(fields []Field) uint64 {
	align := uint64(1)
	for i := range fields {
		if a := fields[i].Type.Align; a > align {
			align = a
		}
	}
	return align
}

// RecordType returns a record with the given fields and storage size.
func RecordType(bytes uint64, fields ...Field) *Type {
	return &Type{Kind: Record, Bytes: bytes, Align: maxFieldAlign(fields), Fields: fields}
}

// UnionType returns a union with the given members and storage size.
func UnionType(bytes uint64, fields ...Field) *Type {
	return &Type{Kind: Union, Bytes: bytes, Align: maxFieldAlign(fields), Fields: fields}
}

// VoidType is the type of value-less functions and opaque pointees.
var VoidType = &Type{Kind: Void}

// IsScalar reports whether values of the type fit in one IR value.
func (t *Type) IsScalar() bool {
	switch t.Kind {
	case Integer, Boolean, Float, Pointer:
		return true
	}
	return false
}

// IsIntegral reports whether the type uses integer semantics.
func (t *Type) IsIntegral() bool {
	return t.Kind == Integer || t.Kind == Boolean
}

// Precision returns the value precision in bits. For aggregates this
// is the storage size in bits.
func (t *Type) Precision() uint32 {
	if t.Bits != 0 {
		return t.Bits
	}
	return uint32(t.Bytes * 8)
}

// ValueRange is an inclusive signed range from value-range propagation,
// stored as 128-bit patterns in the precision of the SSA name.
type ValueRange struct {
	Min uint256.Int
	Max uint256.Int
}

// TargetHooks exposes the few target-dependent facts lowering needs.
// A nil function means the answer is "no".
type TargetHooks struct {
	// CLZDefinedValueAtZero reports the result the target defines for
	// a count-leading-zeros of zero, if any.
	CLZDefinedValueAtZero func(bits uint32) (int64, bool)
	// CTZDefinedValueAtZero is the count-trailing-zeros counterpart.
	CTZDefinedValueAtZero func(bits uint32) (int64, bool)
}
