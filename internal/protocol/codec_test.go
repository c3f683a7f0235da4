package protocol

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	req := Request{Method: "fetch_snapshot", RequestRef: "abc-123"}
	if err := req.EncodeArgs(map[string]any{"lines": 200}); err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var got Request
	if err := ReadFrame(&buf, &got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Method != req.Method || got.RequestRef != req.RequestRef {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}

	var args struct {
		Lines int `msgpack:"lines"`
	}
	if err := got.DecodeArgs(&args); err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if args.Lines != 200 {
		t.Fatalf("args.Lines = %d, want 200", args.Lines)
	}
}

func TestReadFrameRejectsOversizeHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	var out Request
	if err := ReadFrame(&buf, &out); err == nil {
		t.Fatal("expected error for oversize frame header")
	}
}

func TestReadFrameEOFOnEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	var out Request
	if err := ReadFrame(&buf, &out); err == nil {
		t.Fatal("expected EOF on empty stream")
	}
}
