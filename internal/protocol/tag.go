package protocol

import "fmt"

// Tag identifies the concrete representation of a Value.
//
// The table is append-only: an assigned discriminant keeps its meaning for
// the life of the protocol. New kinds go at the end.
type Tag uint8

const (
	TagNone             Tag = 0
	TagBool             Tag = 1
	TagInt8             Tag = 2
	TagInt16            Tag = 3
	TagInt32            Tag = 4
	TagInt64            Tag = 5
	TagUint8            Tag = 6
	TagUint16           Tag = 7
	TagUint32           Tag = 8
	TagUint64           Tag = 9
	TagFloat32          Tag = 10
	TagFloat64          Tag = 11
	TagComplex64        Tag = 12
	TagComplex128       Tag = 13
	TagString           Tag = 14
	TagMatrixHandle     Tag = 15
	TagMatrixDescriptor Tag = 16
	TagPointer          Tag = 17
	TagCommandCode      Tag = 18
	TagLibraryID        Tag = 19
	TagWorkerID         Tag = 20
	TagBytes            Tag = 21

	tagEnd = TagBytes
)

var tagNames = [...]string{
	TagNone:             "none",
	TagBool:             "bool",
	TagInt8:             "int8",
	TagInt16:            "int16",
	TagInt32:            "int32",
	TagInt64:            "int64",
	TagUint8:            "uint8",
	TagUint16:           "uint16",
	TagUint32:           "uint32",
	TagUint64:           "uint64",
	TagFloat32:          "float32",
	TagFloat64:          "float64",
	TagComplex64:        "complex64",
	TagComplex128:       "complex128",
	TagString:           "string",
	TagMatrixHandle:     "matrix_handle",
	TagMatrixDescriptor: "matrix_descriptor",
	TagPointer:          "pointer",
	TagCommandCode:      "command_code",
	TagLibraryID:        "library_id",
	TagWorkerID:         "worker_id",
	TagBytes:            "bytes",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Valid reports whether t is an assigned, non-none discriminant.
func (t Tag) Valid() bool {
	return t > TagNone && t <= tagEnd
}

// Namespace groups tags by how a receiving library consumes them.
type Namespace uint8

const (
	NamespaceGeneral Namespace = iota + 1
	NamespaceMatrix
	NamespacePointer
)

func (n Namespace) String() string {
	switch n {
	case NamespaceGeneral:
		return "general"
	case NamespaceMatrix:
		return "matrix"
	case NamespacePointer:
		return "pointer"
	default:
		return fmt.Sprintf("namespace(%d)", uint8(n))
	}
}

// Namespace returns the ParameterSet sub-namespace values of t live in.
func (t Tag) Namespace() Namespace {
	switch t {
	case TagMatrixHandle, TagMatrixDescriptor:
		return NamespaceMatrix
	case TagPointer:
		return NamespacePointer
	default:
		return NamespaceGeneral
	}
}

// Wireable reports whether values of t may be encoded. Pointers are only
// meaningful inside the process that made them.
func (t Tag) Wireable() bool {
	return t.Valid() && t != TagPointer
}
