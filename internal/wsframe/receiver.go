// Package wsframe decodes WebSocket wire bytes into message and control
// events and encodes payloads back into frames.
package wsframe

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gobwas/ws"

	"wsbridge-go/internal/wsext"
)

// Kind classifies a decoded event.
type Kind int

const (
	KindMessage Kind = iota + 1
	KindPing
	KindPong
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return "close"
	}
	return "unknown"
}

// Event is one decoded unit. Payload is unmasked and, for compressed
// messages, inflated.
type Event struct {
	Kind    Kind
	OpCode  ws.OpCode
	Payload []byte

	// Close events only.
	Code   ws.StatusCode
	Reason string
}

// MaxMessageCeiling caps every message whatever limit the caller configures.
const MaxMessageCeiling = math.MaxInt32

var (
	ErrProtocol        = errors.New("websocket protocol violation")
	ErrMessageTooLarge = errors.New("websocket message exceeds size limit")
)

// Receiver reassembles frames read from one socket into events.
// It is not safe for concurrent use.
type Receiver struct {
	br       *bufio.Reader
	inflater *wsext.Inflater
	maxSize  int64

	inMessage  bool
	op         ws.OpCode
	compressed bool
	buf        []byte
}

// NewReceiver reads frames from r. inflater may be nil when compression was
// not negotiated. A maxSize <= 0 or above MaxMessageCeiling is clamped to
// MaxMessageCeiling.
func NewReceiver(r io.Reader, inflater *wsext.Inflater, maxSize int64) *Receiver {
	if maxSize <= 0 || maxSize > MaxMessageCeiling {
		maxSize = MaxMessageCeiling
	}
	return &Receiver{
		br:       bufio.NewReader(r),
		inflater: inflater,
		maxSize:  maxSize,
	}
}

// Next blocks until a complete event is decoded. It returns io.EOF only when
// the stream ends cleanly on a frame boundary outside a fragmented message.
func (r *Receiver) Next() (Event, error) {
	for {
		h, err := ws.ReadHeader(r.br)
		if err != nil {
			if errors.Is(err, io.EOF) && r.inMessage {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		if err := r.checkHeader(h); err != nil {
			return Event{}, err
		}

		payload, err := readPayload(r.br, h.Length)
		if err != nil {
			return Event{}, fmt.Errorf("read frame payload: %w", err)
		}
		if h.Masked {
			ws.Cipher(payload, h.Mask, 0)
		}

		switch h.OpCode {
		case ws.OpPing:
			return Event{Kind: KindPing, OpCode: h.OpCode, Payload: payload}, nil
		case ws.OpPong:
			return Event{Kind: KindPong, OpCode: h.OpCode, Payload: payload}, nil
		case ws.OpClose:
			return closeEvent(payload)
		case ws.OpText, ws.OpBinary:
			r1, _, _ := ws.RsvBits(h.Rsv)
			r.inMessage = true
			r.op = h.OpCode
			r.compressed = r1
			r.buf = payload
		case ws.OpContinuation:
			r.buf = append(r.buf, payload...)
		}

		if h.Fin {
			return r.finish()
		}
	}
}

// readPayload grows its buffer as bytes arrive, so an announced length
// alone never allocates.
func readPayload(r io.Reader, n int64) ([]byte, error) {
	var b bytes.Buffer
	if n <= bytes.MinRead {
		b.Grow(int(n))
	}
	if _, err := io.CopyN(&b, r, n); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b.Bytes(), nil
}

func (r *Receiver) checkHeader(h ws.Header) error {
	r1, r2, r3 := ws.RsvBits(h.Rsv)
	if r2 || r3 {
		return fmt.Errorf("%w: reserved bits set", ErrProtocol)
	}
	if h.Length < 0 {
		return fmt.Errorf("%w: negative payload length", ErrProtocol)
	}

	switch h.OpCode {
	case ws.OpPing, ws.OpPong, ws.OpClose:
		if !h.Fin || h.Length > 125 || r1 {
			return fmt.Errorf("%w: malformed control frame", ErrProtocol)
		}
		return nil
	case ws.OpText, ws.OpBinary:
		if r.inMessage {
			return fmt.Errorf("%w: data frame inside fragmented message", ErrProtocol)
		}
		if r1 && r.inflater == nil {
			return fmt.Errorf("%w: compressed frame without negotiated extension", ErrProtocol)
		}
	case ws.OpContinuation:
		if !r.inMessage {
			return fmt.Errorf("%w: continuation without message", ErrProtocol)
		}
		if r1 {
			return fmt.Errorf("%w: rsv1 on continuation frame", ErrProtocol)
		}
	default:
		return fmt.Errorf("%w: unknown opcode %d", ErrProtocol, h.OpCode)
	}

	// Length is checked alone first so the sum cannot overflow.
	if h.Length > r.maxSize {
		return ErrMessageTooLarge
	}
	if h.OpCode == ws.OpContinuation && h.Length+int64(len(r.buf)) > r.maxSize {
		return ErrMessageTooLarge
	}
	return nil
}

func (r *Receiver) finish() (Event, error) {
	ev := Event{Kind: KindMessage, OpCode: r.op, Payload: r.buf}
	compressed := r.compressed
	r.inMessage, r.compressed, r.buf = false, false, nil

	if compressed {
		p, err := r.inflater.Decompress(ev.Payload, r.maxSize)
		if err != nil {
			if errors.Is(err, wsext.ErrMessageTooLarge) {
				return Event{}, ErrMessageTooLarge
			}
			return Event{}, err
		}
		ev.Payload = p
	}
	return ev, nil
}

func closeEvent(payload []byte) (Event, error) {
	switch len(payload) {
	case 0:
		return Event{Kind: KindClose, OpCode: ws.OpClose, Code: ws.StatusNoStatusRcvd}, nil
	case 1:
		return Event{}, fmt.Errorf("%w: truncated close code", ErrProtocol)
	}
	code, reason := ws.ParseCloseFrameData(payload)
	return Event{Kind: KindClose, OpCode: ws.OpClose, Payload: payload, Code: code, Reason: reason}, nil
}
