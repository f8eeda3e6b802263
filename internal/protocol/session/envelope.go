package session

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/danmuck/distask/internal/protocol/frame"
	"github.com/danmuck/distask/internal/protocol/schema"
	"github.com/danmuck/distask/internal/protocol/tlv"
)

// Request is a driver->worker envelope. Kind is one of schema.MsgLoad,
// schema.MsgRun or schema.MsgUnload.
type Request struct {
	Kind      uint32
	RequestID string
	Library   string
	Task      string
	Path      string
	Params    []byte
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return fmt.Errorf("request missing request_id")
	}
	if strings.TrimSpace(r.Library) == "" {
		return fmt.Errorf("request missing library")
	}
	switch r.Kind {
	case schema.MsgLoad, schema.MsgUnload:
	case schema.MsgRun:
		if strings.TrimSpace(r.Task) == "" {
			return fmt.Errorf("request missing task")
		}
	default:
		return fmt.Errorf("request kind %s is not a request", schema.MessageName(r.Kind))
	}
	return nil
}

// Reply is one worker's answer to a Request.
type Reply struct {
	RequestID string
	Rank      uint32
	Status    uint32
	Error     string
	Params    []byte
}

func (r Reply) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return fmt.Errorf("reply missing request_id")
	}
	return nil
}

// EncodeRequestFrame renders a request envelope into framed bytes.
func EncodeRequestFrame(messageID uint64, req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.StringField(schema.FieldRequestID, req.RequestID),
		tlv.StringField(schema.FieldLibrary, req.Library),
	}
	switch req.Kind {
	case schema.MsgLoad:
		if req.Path != "" {
			fields = append(fields, tlv.StringField(schema.FieldPath, req.Path))
		}
	case schema.MsgRun:
		fields = append(fields,
			tlv.StringField(schema.FieldTask, req.Task),
			tlv.BytesField(schema.FieldParams, req.Params),
		)
	}
	return encode(messageID, req.Kind, 0, fields)
}

// DecodeRequestFrame validates and extracts a request envelope.
func DecodeRequestFrame(f frame.Frame, cfg Config) (Request, error) {
	fields, err := decode(f, cfg)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		Kind:      f.Header.MessageType,
		RequestID: stringField(fields, schema.FieldRequestID),
		Library:   stringField(fields, schema.FieldLibrary),
		Task:      stringField(fields, schema.FieldTask),
		Path:      stringField(fields, schema.FieldPath),
	}
	if p, ok := tlv.GetField(fields, schema.FieldParams); ok {
		req.Params = append([]byte(nil), p.Value...)
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// EncodeReplyFrame renders a reply envelope into framed bytes. A non-empty
// Error sets frame.FlagIsError.
func EncodeReplyFrame(messageID uint64, rep Reply) ([]byte, error) {
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.StringField(schema.FieldRequestID, rep.RequestID),
		tlv.U32Field(schema.FieldRank, rep.Rank),
		tlv.U32Field(schema.FieldStatus, rep.Status),
	}
	flags := frame.FlagIsResponse
	if rep.Error != "" {
		fields = append(fields, tlv.StringField(schema.FieldError, rep.Error))
		flags |= frame.FlagIsError
	}
	if rep.Params != nil {
		fields = append(fields, tlv.BytesField(schema.FieldParams, rep.Params))
	}
	return encode(messageID, schema.MsgReply, flags, fields)
}

// DecodeReplyFrame validates and extracts a reply envelope.
func DecodeReplyFrame(f frame.Frame, cfg Config) (Reply, error) {
	if f.Header.MessageType != schema.MsgReply {
		return Reply{}, fmt.Errorf("unexpected message type %s", schema.MessageName(f.Header.MessageType))
	}
	fields, err := decode(f, cfg)
	if err != nil {
		return Reply{}, err
	}
	rank, _ := tlv.GetField(fields, schema.FieldRank)
	status, _ := tlv.GetField(fields, schema.FieldStatus)
	rep := Reply{
		RequestID: stringField(fields, schema.FieldRequestID),
		Error:     stringField(fields, schema.FieldError),
	}
	if rep.Rank, err = tlv.U32FromBytes(rank.Value); err != nil {
		return Reply{}, err
	}
	if rep.Status, err = tlv.U32FromBytes(status.Value); err != nil {
		return Reply{}, err
	}
	if p, ok := tlv.GetField(fields, schema.FieldParams); ok {
		rep.Params = append([]byte{}, p.Value...)
	}
	return rep, nil
}

func encode(messageID uint64, messageType, flags uint32, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(f frame.Frame, cfg Config) ([]tlv.Field, error) {
	fields, err := tlv.DecodeFields(f.Payload, cfg.MaxFields)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func stringField(fields []tlv.Field, id uint16) string {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return ""
	}
	return string(f.Value)
}
