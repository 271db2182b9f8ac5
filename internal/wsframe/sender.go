package wsframe

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/gobwas/ws"

	"wsbridge-go/internal/wsext"
)

// Sender writes complete, unfragmented frames to one socket.
// It is not safe for concurrent use.
type Sender struct {
	bw       *bufio.Writer
	mask     bool
	deflater *wsext.Deflater
}

// NewSender writes frames to w. Frames are masked when mask is set, which is
// required when w leads to the server end of the connection. deflater may be
// nil to send messages uncompressed.
func NewSender(w io.Writer, mask bool, deflater *wsext.Deflater) *Sender {
	return &Sender{
		bw:       bufio.NewWriter(w),
		mask:     mask,
		deflater: deflater,
	}
}

// Send writes payload as one message. Valid UTF-8 goes out as a text frame,
// anything else as binary.
func (s *Sender) Send(payload []byte) error {
	op := ws.OpBinary
	if utf8.Valid(payload) {
		op = ws.OpText
	}

	if s.deflater == nil {
		return s.write(ws.NewFrame(op, true, payload))
	}
	compressed, err := s.deflater.Compress(payload)
	if err != nil {
		return err
	}
	f := ws.NewFrame(op, true, compressed)
	f.Header.Rsv = ws.Rsv(true, false, false)
	return s.write(f)
}

func (s *Sender) Ping(p []byte) error {
	return s.write(ws.NewPingFrame(p))
}

func (s *Sender) Pong(p []byte) error {
	return s.write(ws.NewPongFrame(p))
}

// Close writes a close frame. StatusNoStatusRcvd is never put on the wire,
// so it produces a close frame with an empty body.
func (s *Sender) Close(code ws.StatusCode, reason string) error {
	if code == ws.StatusNoStatusRcvd {
		return s.write(ws.NewCloseFrame(nil))
	}
	return s.write(ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
}

func (s *Sender) write(f ws.Frame) error {
	if s.mask {
		f = ws.MaskFrameInPlace(f)
	}
	if err := ws.WriteFrame(s.bw, f); err != nil {
		return fmt.Errorf("write frame (opcode %d): %w", f.Header.OpCode, err)
	}
	if err := s.bw.Flush(); err != nil {
		return fmt.Errorf("flush frame (opcode %d): %w", f.Header.OpCode, err)
	}
	return nil
}
