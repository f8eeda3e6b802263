package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/distask/internal/protocol/tlv"
	"github.com/danmuck/distask/internal/testutil/testlog"
)

func runFields() []tlv.Field {
	return []tlv.Field{
		tlv.StringField(FieldRequestID, "req-1"),
		tlv.StringField(FieldLibrary, "linalg"),
		tlv.StringField(FieldTask, "transpose-shape"),
		tlv.BytesField(FieldParams, nil),
	}
}

func TestValidateRunRequiredFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgRun, runFields()); err != nil {
		t.Fatalf("validate run: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := append(runFields(), tlv.Field{ID: 9999, Type: tlv.TypeBytes, Value: []byte{1}})
	if err := Validate(MsgRun, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(MsgRun, []tlv.Field{tlv.StringField(FieldRequestID, "req-1")})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldLibrary || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := runFields()
	fields[3] = tlv.StringField(FieldParams, "not bytes")
	err := Validate(MsgRun, fields)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.FieldID != FieldParams || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateOptionalReplyFieldType(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.StringField(FieldRequestID, "req-1"),
		tlv.U32Field(FieldRank, 0),
		tlv.U32Field(FieldStatus, 0),
	}
	if err := Validate(MsgReply, fields); err != nil {
		t.Fatalf("reply without optional fields: %v", err)
	}
	fields = append(fields, tlv.U32Field(FieldError, 1))
	if err := Validate(MsgReply, fields); err == nil {
		t.Fatalf("expected optional type mismatch")
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(99, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected error: %v", err)
	}
}
