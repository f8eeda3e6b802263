package protocol

import (
	"fmt"
	"strings"

	"github.com/danmuck/distask/internal/matrix"
)

// CommandCode is a driver command discriminant carried as a value.
type CommandCode uint8

// LibraryID identifies a loaded library on the driver side.
type LibraryID uint16

// WorkerID indexes a rank in the world.
type WorkerID = matrix.WorkerID

// Pointer is a process-local opaque reference. It never leaves the process.
type Pointer struct {
	ref any
}

// PointerTo wraps p as an opaque pointer value payload.
func PointerTo[T any](p *T) Pointer {
	if p == nil {
		return Pointer{}
	}
	return Pointer{ref: p}
}

// Ref returns the wrapped reference, nil for a null pointer.
func (p Pointer) Ref() any {
	return p.ref
}

func (p Pointer) String() string {
	if p.ref == nil {
		return "0x0"
	}
	return fmt.Sprintf("%p", p.ref)
}

// Kind is the closed set of Go representations a Value can hold.
type Kind interface {
	bool |
		int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64 |
		complex64 | complex128 |
		string | []byte |
		matrix.ID | matrix.Descriptor |
		Pointer | CommandCode | LibraryID | WorkerID
}

// Value is one named, tagged payload. The payload's Go type is always the
// representation of its tag.
type Value struct {
	name    string
	tag     Tag
	payload any
}

// Make builds a Value whose tag is chosen by the Go type of v.
func Make[T Kind](name string, v T) Value {
	return Value{name: name, tag: TagOf[T](), payload: own(any(v))}
}

// New builds a Value for an explicit tag, rejecting a payload of the wrong
// representation.
func New(name string, tag Tag, v any) (Value, error) {
	if !tag.Valid() {
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(tag))
	}
	if got := tagOfPayload(v); got != tag {
		return Value{}, fmt.Errorf("%w: %q wants %s, payload is %T", ErrTypeMismatch, name, tag, v)
	}
	return Value{name: name, tag: tag, payload: own(v)}, nil
}

// As extracts the payload as T. A stored tag other than T's fails with
// ErrTypeMismatch; nothing is ever reinterpreted.
func As[T Kind](v Value) (T, error) {
	var zero T
	want := TagOf[T]()
	if v.tag != want {
		return zero, fmt.Errorf("%w: %q is %s, requested %s", ErrTypeMismatch, v.name, v.tag, want)
	}
	out, ok := own(v.payload).(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q payload %T", ErrTypeMismatch, v.name, v.payload)
	}
	return out, nil
}

func (v Value) Name() string { return v.name }

func (v Value) Tag() Tag { return v.tag }

// Payload returns a copy of the raw payload for diagnostics and codecs.
func (v Value) Payload() any { return own(v.payload) }

// IsZero reports whether v was never constructed.
func (v Value) IsZero() bool { return v.tag == TagNone }

// ValidName rejects names that cannot be rendered or framed unambiguously.
func ValidName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrInvalidName, len(name))
	}
	if strings.ContainsAny(name, "()") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

const maxNameLen = 1<<16 - 1

// TagOf returns the tag assigned to the Go representation T.
func TagOf[T Kind]() Tag {
	var zero T
	return tagOfPayload(any(zero))
}

func tagOfPayload(v any) Tag {
	switch v.(type) {
	case bool:
		return TagBool
	case int8:
		return TagInt8
	case int16:
		return TagInt16
	case int32:
		return TagInt32
	case int64:
		return TagInt64
	case uint8:
		return TagUint8
	case uint16:
		return TagUint16
	case uint32:
		return TagUint32
	case uint64:
		return TagUint64
	case float32:
		return TagFloat32
	case float64:
		return TagFloat64
	case complex64:
		return TagComplex64
	case complex128:
		return TagComplex128
	case string:
		return TagString
	case []byte:
		return TagBytes
	case matrix.ID:
		return TagMatrixHandle
	case matrix.Descriptor:
		return TagMatrixDescriptor
	case Pointer:
		return TagPointer
	case CommandCode:
		return TagCommandCode
	case LibraryID:
		return TagLibraryID
	case WorkerID:
		return TagWorkerID
	default:
		return TagNone
	}
}

// own copies payloads that carry shared backing storage.
func own(v any) any {
	switch x := v.(type) {
	case []byte:
		if x == nil {
			return []byte(nil)
		}
		out := make([]byte, len(x))
		copy(out, x)
		return out
	case matrix.Descriptor:
		return x.Clone()
	default:
		return v
	}
}
