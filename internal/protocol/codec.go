package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxFrameBytes bounds a single request or response frame, preventing
// memory exhaustion from a misbehaving or malicious client — the same
// role maxPipeRequestBytes played for the teacher's named-pipe transport,
// sized up here because terminal snapshot frames can carry buffered
// scrollback.
const maxFrameBytes = 4 << 20 // 4MB

// Request is the envelope every RPC call is wrapped in.
type Request struct {
	Method     string `msgpack:"method"`
	RequestRef string `msgpack:"request_ref,omitempty"`
	Args       msgpack.RawMessage `msgpack:"args,omitempty"`
}

// Response is the envelope every RPC reply is wrapped in.
type Response struct {
	RequestRef string             `msgpack:"request_ref,omitempty"`
	Result     msgpack.RawMessage `msgpack:"result,omitempty"`
	Error      *Error             `msgpack:"error,omitempty"`
	Replayed   bool               `msgpack:"replayed,omitempty"`
}

// EncodeArgs marshals v and assigns it to Args.
func (r *Request) EncodeArgs(v any) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	r.Args = raw
	return nil
}

// DecodeArgs unmarshals Args into v.
func (r *Request) DecodeArgs(v any) error {
	if len(r.Args) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(r.Args, v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// EncodeResult marshals v and assigns it to Result.
func (r *Response) EncodeResult(v any) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	r.Result = raw
	return nil
}

// DecodeResult unmarshals Result into v.
func (r *Response) DecodeResult(v any) error {
	if len(r.Result) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// WriteFrame writes a 4-byte big-endian length prefix followed by the
// MessagePack encoding of v. Mirrors the teacher's length-delimited
// framing discipline (there newline-delimited JSON; here length-delimited
// MessagePack, since frame content — raw terminal bytes — may itself
// contain newlines).
func WriteFrame(w io.Writer, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > maxFrameBytes {
		return fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-delimited frame and unmarshals it into v.
func ReadFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return fmt.Errorf("frame header declares %d bytes, exceeds %d", n, maxFrameBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
