package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/distask/internal/matrix"
)

// DecodePayload rebuilds a Value from its tag and payload bytes.
func DecodePayload(name string, tag Tag, b []byte) (Value, error) {
	if !tag.Valid() {
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(tag))
	}
	if !tag.Wireable() {
		return Value{}, fmt.Errorf("%w: %q", ErrNotWireable, name)
	}
	payload, err := decodeRaw(tag, b)
	if err != nil {
		return Value{}, fmt.Errorf("decode %q (%s): %w", name, tag, err)
	}
	return Value{name: name, tag: tag, payload: payload}, nil
}

func decodeRaw(tag Tag, b []byte) (any, error) {
	switch tag {
	case TagString:
		return string(b), nil
	case TagBytes:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case TagMatrixDescriptor:
		return decodeDescriptor(b)
	}

	if len(b) != fixedWidth(tag) {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(b))
	}
	switch tag {
	case TagBool:
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("%w: %#x", ErrInvalidBool, b[0])
		}
	case TagInt8:
		return int8(b[0]), nil
	case TagUint8:
		return b[0], nil
	case TagCommandCode:
		return CommandCode(b[0]), nil
	case TagInt16:
		return int16(binary.BigEndian.Uint16(b)), nil
	case TagUint16:
		return binary.BigEndian.Uint16(b), nil
	case TagMatrixHandle:
		return matrix.ID(binary.BigEndian.Uint16(b)), nil
	case TagLibraryID:
		return LibraryID(binary.BigEndian.Uint16(b)), nil
	case TagWorkerID:
		return WorkerID(binary.BigEndian.Uint16(b)), nil
	case TagInt32:
		return int32(binary.BigEndian.Uint32(b)), nil
	case TagUint32:
		return binary.BigEndian.Uint32(b), nil
	case TagInt64:
		return int64(binary.BigEndian.Uint64(b)), nil
	case TagUint64:
		return binary.BigEndian.Uint64(b), nil
	case TagFloat32:
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case TagFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case TagComplex64:
		re := math.Float32frombits(binary.BigEndian.Uint32(b[0:4]))
		im := math.Float32frombits(binary.BigEndian.Uint32(b[4:8]))
		return complex(re, im), nil
	case TagComplex128:
		re := math.Float64frombits(binary.BigEndian.Uint64(b[0:8]))
		im := math.Float64frombits(binary.BigEndian.Uint64(b[8:16]))
		return complex(re, im), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(tag))
	}
}

func fixedWidth(tag Tag) int {
	switch tag {
	case TagBool, TagInt8, TagUint8, TagCommandCode:
		return 1
	case TagInt16, TagUint16, TagMatrixHandle, TagLibraryID, TagWorkerID:
		return 2
	case TagInt32, TagUint32, TagFloat32:
		return 4
	case TagInt64, TagUint64, TagFloat64, TagComplex64:
		return 8
	case TagComplex128:
		return 16
	default:
		return -1
	}
}

func decodeDescriptor(b []byte) (matrix.Descriptor, error) {
	if len(b) < descriptorFixedLen {
		return matrix.Descriptor{}, fmt.Errorf("%w: descriptor header %d bytes", ErrInvalidLength, len(b))
	}
	if b[18] > 1 {
		return matrix.Descriptor{}, fmt.Errorf("%w: sparse flag %#x", ErrInvalidBool, b[18])
	}
	d := matrix.Descriptor{
		ID:         matrix.ID(binary.BigEndian.Uint16(b[0:2])),
		Rows:       binary.BigEndian.Uint64(b[2:10]),
		Cols:       binary.BigEndian.Uint64(b[10:18]),
		Sparse:     b[18] == 1,
		Layout:     matrix.Layout(b[19]),
		Partitions: binary.BigEndian.Uint16(b[20:22]),
	}
	nameLen := int(binary.BigEndian.Uint16(b[22:24]))
	rest := b[descriptorFixedLen:]
	if len(rest) < nameLen {
		return matrix.Descriptor{}, fmt.Errorf("%w: descriptor name", ErrInvalidLength)
	}
	d.Name = string(rest[:nameLen])
	rest = rest[nameLen:]
	if len(rest)%2 != 0 || uint64(len(rest)/2) != d.Rows {
		return matrix.Descriptor{}, fmt.Errorf("%w: %d row bytes for %d rows", matrix.ErrDimensionMismatch, len(rest), d.Rows)
	}
	d.RowAssignment = make([]WorkerID, d.Rows)
	for i := range d.RowAssignment {
		d.RowAssignment[i] = WorkerID(binary.BigEndian.Uint16(rest[2*i:]))
	}
	return d, nil
}
