package params

import (
	"errors"
	"fmt"

	"github.com/danmuck/distask/internal/protocol"
	"github.com/danmuck/distask/internal/protocol/tlv"
)

var ErrMalformed = errors.New("params: malformed record")

// Marshal packs every value as one TLV record: id is the sub-namespace,
// type is the value tag, body is the length-prefixed name then payload.
// Sets holding pointers fail with ErrNotWireable.
func Marshal(s *Set) ([]byte, error) {
	all := s.All()
	fields := make([]tlv.Field, 0, len(all))
	for _, v := range all {
		payload, err := protocol.EncodePayload(v)
		if err != nil {
			return nil, err
		}
		fields = append(fields, tlv.Field{
			ID:    uint16(v.Tag().Namespace()),
			Type:  uint8(v.Tag()),
			Value: tlv.PackNamed(v.Name(), payload),
		})
	}
	return tlv.EncodeFields(fields), nil
}

// Unmarshal rebuilds a set, preserving insertion order per sub-namespace.
func Unmarshal(b []byte) (*Set, error) {
	fields, err := tlv.DecodeFields(b, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s := New()
	for _, f := range fields {
		tag := protocol.Tag(f.Type)
		if !tag.Valid() {
			return nil, fmt.Errorf("%w: %d", protocol.ErrUnknownTag, f.Type)
		}
		if f.ID != uint16(tag.Namespace()) {
			return nil, fmt.Errorf("%w: %s record filed under namespace %d", ErrMalformed, tag, f.ID)
		}
		name, payload, err := tlv.UnpackNamed(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		v, err := protocol.DecodePayload(name, tag, payload)
		if err != nil {
			return nil, err
		}
		if err := s.Add(v); err != nil {
			return nil, err
		}
	}
	return s, nil
}
