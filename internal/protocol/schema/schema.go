package schema

import (
	"fmt"

	"github.com/danmuck/distask/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs carried in the frame header.
const (
	MsgLoad   uint32 = 1
	MsgRun    uint32 = 2
	MsgUnload uint32 = 3
	MsgReply  uint32 = 4
)

// Field IDs.
const (
	FieldLibrary   uint16 = 1
	FieldTask      uint16 = 2
	FieldRequestID uint16 = 3
	FieldParams    uint16 = 4
	FieldStatus    uint16 = 5
	FieldError     uint16 = 6
	FieldRank      uint16 = 7
	FieldPath      uint16 = 8
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%s: %s", MessageName(e.MessageType), e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%s field=%d: %s", MessageName(e.MessageType), e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgLoad: {
		{FieldRequestID, tlv.TypeString},
		{FieldLibrary, tlv.TypeString},
	},
	MsgRun: {
		{FieldRequestID, tlv.TypeString},
		{FieldLibrary, tlv.TypeString},
		{FieldTask, tlv.TypeString},
		{FieldParams, tlv.TypeBytes},
	},
	MsgUnload: {
		{FieldRequestID, tlv.TypeString},
		{FieldLibrary, tlv.TypeString},
	},
	MsgReply: {
		{FieldRequestID, tlv.TypeString},
		{FieldRank, tlv.TypeU32},
		{FieldStatus, tlv.TypeU32},
	},
}

// optional fields are type-checked only when present.
var optional = map[uint32][]Requirement{
	MsgLoad:  {{FieldPath, tlv.TypeString}},
	MsgReply: {{FieldParams, tlv.TypeBytes}, {FieldError, tlv.TypeString}},
}

func MessageName(messageType uint32) string {
	switch messageType {
	case MsgLoad:
		return "load"
	case MsgRun:
		return "run"
	case MsgUnload:
		return "unload"
	case MsgReply:
		return "reply"
	default:
		return fmt.Sprintf("unknown(%d)", messageType)
	}
}

// Validate enforces required fields and field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	log.Trace().Str("message", MessageName(messageType)).Int("fields", len(fields)).Msg("schema.Validate")
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().Str("message", MessageName(messageType)).Uint16("field_id", req.ID).Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Str("message", MessageName(messageType)).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	for _, opt := range optional[messageType] {
		f, found := tlv.GetField(fields, opt.ID)
		if found && f.Type != opt.Type {
			return ValidationError{MessageType: messageType, FieldID: opt.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
