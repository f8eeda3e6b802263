package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is id(2) + type(1) + length(4).
const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrShortName        = errors.New("tlv: short name prefix")
	ErrTooManyFields    = errors.New("tlv: too many fields")
)

// Frame-level type IDs. Parameter records reuse the type byte for the
// value's protocol tag instead.
const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func (f Field) String() string {
	return fmt.Sprintf("field(id=%d type=%d len=%d)", f.ID, f.Type, len(f.Value))
}

func EncodeField(f Field) []byte {
	return AppendField(make([]byte, 0, HeaderLen+len(f.Value)), f)
}

// AppendField appends the wire form of f to buf.
func AppendField(buf []byte, f Field) []byte {
	buf = binary.BigEndian.AppendUint16(buf, f.ID)
	buf = append(buf, f.Type)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Value)))
	return append(buf, f.Value...)
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// DecodeFields splits payload into fields, preserving order and unknown ids.
// limit <= 0 means unbounded.
func DecodeFields(payload []byte, limit int) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if limit > 0 && len(fields) == limit {
			return nil, ErrTooManyFields
		}
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
	}
	return nil
}

// PackNamed prefixes body with a u16 length-prefixed name.
func PackNamed(name string, body []byte) []byte {
	buf := make([]byte, 0, 2+len(name)+len(body))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(name)))
	buf = append(buf, name...)
	return append(buf, body...)
}

// UnpackNamed reverses PackNamed.
func UnpackNamed(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, ErrShortName
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	if len(b)-2 < n {
		return "", nil, ErrShortName
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}

func U32FromBytes(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("tlv: invalid u32 length: %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func U64FromBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("tlv: invalid u64 length: %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func U32Field(id uint16, v uint32) Field {
	return Field{ID: id, Type: TypeU32, Value: binary.BigEndian.AppendUint32(nil, v)}
}

func U64Field(id uint16, v uint64) Field {
	return Field{ID: id, Type: TypeU64, Value: binary.BigEndian.AppendUint64(nil, v)}
}

func StringField(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func BytesField(id uint16, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: TypeBytes, Value: buf}
}
