package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/distask/internal/protocol/tlv"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{tlv.StringField(1, "linalg")})
	in := Frame{
		Header:  Header{MessageID: 42, MessageType: 2, Flags: FlagIsResponse},
		Payload: payload,
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.MessageType != 2 || out.Header.MessageID != 42 {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if out.Header.Flags&FlagIsResponse == 0 {
		t.Fatalf("flags lost: %+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameRejectsForeignMagic(t *testing.T) {
	h := Header{Magic: 1, Version: Version, HeaderLen: FixedHeaderLen}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), DefaultLimits())
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReadFrameRejectsVersion(t *testing.T) {
	h := Header{Magic: Magic, Version: Version + 1, HeaderLen: FixedHeaderLen}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), DefaultLimits())
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestReadFrameHeaderLenMismatch(t *testing.T) {
	h := Header{Magic: Magic, Version: Version, HeaderLen: 8}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), DefaultLimits())
	if !errors.Is(err, ErrHeaderLenMismatch) {
		t.Fatalf("expected ErrHeaderLenMismatch, got %v", err)
	}
}

func TestReadFramePayloadLimit(t *testing.T) {
	h := Header{Magic: Magic, Version: Version, HeaderLen: FixedHeaderLen, PayloadLen: 1024}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	b, err := Marshal(Frame{Header: Header{MessageType: 1}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Unmarshal(append(b, 0)); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
	if _, err := Unmarshal(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}
