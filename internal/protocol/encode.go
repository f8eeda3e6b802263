package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/distask/internal/matrix"
)

// descriptorFixedLen covers id, rows, cols, sparse, layout, partitions and name length.
const descriptorFixedLen = 2 + 8 + 8 + 1 + 1 + 2 + 2

// EncodePayload returns the big-endian wire bytes of v's payload.
func EncodePayload(v Value) ([]byte, error) {
	if !v.tag.Wireable() {
		if v.tag == TagPointer {
			return nil, fmt.Errorf("%w: %q", ErrNotWireable, v.name)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(v.tag))
	}
	switch x := v.payload.(type) {
	case bool:
		if x {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case int8:
		return []byte{byte(x)}, nil
	case uint8:
		return []byte{x}, nil
	case CommandCode:
		return []byte{byte(x)}, nil
	case int16:
		return binary.BigEndian.AppendUint16(nil, uint16(x)), nil
	case uint16:
		return binary.BigEndian.AppendUint16(nil, x), nil
	case matrix.ID:
		return binary.BigEndian.AppendUint16(nil, uint16(x)), nil
	case LibraryID:
		return binary.BigEndian.AppendUint16(nil, uint16(x)), nil
	case WorkerID:
		return binary.BigEndian.AppendUint16(nil, uint16(x)), nil
	case int32:
		return binary.BigEndian.AppendUint32(nil, uint32(x)), nil
	case uint32:
		return binary.BigEndian.AppendUint32(nil, x), nil
	case int64:
		return binary.BigEndian.AppendUint64(nil, uint64(x)), nil
	case uint64:
		return binary.BigEndian.AppendUint64(nil, x), nil
	case float32:
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(x)), nil
	case float64:
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(x)), nil
	case complex64:
		buf := binary.BigEndian.AppendUint32(nil, math.Float32bits(real(x)))
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(imag(x))), nil
	case complex128:
		buf := binary.BigEndian.AppendUint64(nil, math.Float64bits(real(x)))
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(imag(x))), nil
	case string:
		return []byte(x), nil
	case []byte:
		return own(x).([]byte), nil
	case matrix.Descriptor:
		return encodeDescriptor(x)
	default:
		return nil, fmt.Errorf("%w: %q payload %T", ErrTypeMismatch, v.name, v.payload)
	}
}

func encodeDescriptor(d matrix.Descriptor) ([]byte, error) {
	if uint64(len(d.RowAssignment)) != d.Rows {
		return nil, fmt.Errorf("%w: descriptor %d row table", matrix.ErrDimensionMismatch, d.ID)
	}
	if len(d.Name) > maxNameLen {
		return nil, fmt.Errorf("%w: descriptor name %d bytes", ErrInvalidLength, len(d.Name))
	}
	buf := make([]byte, 0, descriptorFixedLen+len(d.Name)+2*len(d.RowAssignment))
	buf = binary.BigEndian.AppendUint16(buf, uint16(d.ID))
	buf = binary.BigEndian.AppendUint64(buf, d.Rows)
	buf = binary.BigEndian.AppendUint64(buf, d.Cols)
	if d.Sparse {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(d.Layout))
	buf = binary.BigEndian.AppendUint16(buf, d.Partitions)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(d.Name)))
	buf = append(buf, d.Name...)
	for _, w := range d.RowAssignment {
		buf = binary.BigEndian.AppendUint16(buf, uint16(w))
	}
	return buf, nil
}
