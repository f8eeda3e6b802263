package session

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/distask/internal/protocol/frame"
	"github.com/danmuck/distask/internal/protocol/schema"
	"github.com/danmuck/distask/internal/protocol/tlv"
	"github.com/danmuck/distask/internal/testutil/testlog"
)

func TestRunRequestFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Request{
		Kind:      schema.MsgRun,
		RequestID: "req-1",
		Library:   "linalg",
		Task:      "transpose-shape",
		Params:    []byte{1, 2, 3},
	}
	b, err := EncodeRequestFrame(7, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := frame.Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f.Header.MessageID != 7 || f.Header.MessageType != schema.MsgRun {
		t.Fatalf("unexpected header: %+v", f.Header)
	}
	out, err := DecodeRequestFrame(f, DefaultConfig())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Kind != in.Kind || out.RequestID != in.RequestID || out.Library != in.Library || out.Task != in.Task {
		t.Fatalf("mismatch: %+v", out)
	}
	if !bytes.Equal(out.Params, in.Params) {
		t.Fatalf("params mismatch: %v", out.Params)
	}
}

func TestLoadRequestCarriesPath(t *testing.T) {
	testlog.Start(t)
	b, err := EncodeRequestFrame(1, Request{Kind: schema.MsgLoad, RequestID: "r", Library: "ext", Path: "/tmp/ext.so"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, _ := frame.Unmarshal(b)
	out, err := DecodeRequestFrame(f, DefaultConfig())
	if err != nil || out.Path != "/tmp/ext.so" {
		t.Fatalf("decode: %+v err=%v", out, err)
	}
}

func TestRequestValidateRejectsMissingTask(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeRequestFrame(1, Request{Kind: schema.MsgRun, RequestID: "r", Library: "linalg"})
	if err == nil {
		t.Fatalf("expected missing task error")
	}
	_, err = EncodeRequestFrame(1, Request{Kind: schema.MsgReply, RequestID: "r", Library: "linalg"})
	if err == nil {
		t.Fatalf("reply kind must not encode as a request")
	}
}

func TestReplyFrameRoundTripWithError(t *testing.T) {
	testlog.Start(t)
	in := Reply{RequestID: "req-2", Rank: 3, Status: 1, Error: "boom"}
	b, err := EncodeReplyFrame(9, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := frame.Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Header.Flags&frame.FlagIsError == 0 || f.Header.Flags&frame.FlagIsResponse == 0 {
		t.Fatalf("unexpected flags: %d", f.Header.Flags)
	}
	out, err := DecodeReplyFrame(f, DefaultConfig())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RequestID != "req-2" || out.Rank != 3 || out.Status != 1 || out.Error != "boom" || out.Params != nil {
		t.Fatalf("mismatch: %+v", out)
	}
}

func TestDecodeReplyRejectsRequestFrame(t *testing.T) {
	testlog.Start(t)
	b, _ := EncodeRequestFrame(1, Request{Kind: schema.MsgUnload, RequestID: "r", Library: "linalg"})
	f, _ := frame.Unmarshal(b)
	if _, err := DecodeReplyFrame(f, DefaultConfig()); err == nil {
		t.Fatalf("expected message type error")
	}
}

func TestDecodeHonoursFieldLimit(t *testing.T) {
	testlog.Start(t)
	b, _ := EncodeReplyFrame(1, Reply{RequestID: "r", Params: []byte{}})
	f, _ := frame.Unmarshal(b)
	cfg := DefaultConfig()
	cfg.MaxFields = 2
	if _, err := DecodeReplyFrame(f, cfg); !errors.Is(err, tlv.ErrTooManyFields) {
		t.Fatalf("expected ErrTooManyFields, got %v", err)
	}
}
