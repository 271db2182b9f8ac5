package wsext

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// windowSize is the DEFLATE sliding window carried between messages when
// context takeover is in effect.
const windowSize = 1 << maxWindowBits

// ErrMessageTooLarge is returned when a decompressed message exceeds the limit.
var ErrMessageTooLarge = errors.New("decompressed message exceeds size limit")

// syncTail is appended to every compressed message before inflating: the
// empty stored block stripped by the sender, then a final empty block so the
// reader stops at the message boundary.
var syncTail = []byte{0x00, 0x00, 0xff, 0xff, 0x01, 0x00, 0x00, 0xff, 0xff}

// Deflater compresses the messages of one direction of one session.
type Deflater struct {
	takeover bool
	buf      bytes.Buffer
	fw       *flate.Writer
}

// Compress returns p compressed as a single permessage-deflate payload.
func (d *Deflater) Compress(p []byte) ([]byte, error) {
	d.buf.Reset()
	switch {
	case d.fw == nil:
		fw, err := flate.NewWriter(&d.buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("deflate init: %w", err)
		}
		d.fw = fw
	case !d.takeover:
		d.fw.Reset(&d.buf)
	}
	if _, err := d.fw.Write(p); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := d.fw.Flush(); err != nil {
		return nil, fmt.Errorf("deflate flush: %w", err)
	}
	out := bytes.TrimSuffix(d.buf.Bytes(), syncTail[:4])
	return bytes.Clone(out), nil
}

// Inflater decompresses the messages of one direction of one session.
type Inflater struct {
	takeover bool
	dict     []byte
	fr       io.ReadCloser
}

// Decompress inflates one permessage-deflate payload. A positive limit caps
// the decompressed size.
func (i *Inflater) Decompress(p []byte, limit int64) ([]byte, error) {
	src := io.MultiReader(bytes.NewReader(p), bytes.NewReader(syncTail))
	if i.fr == nil {
		i.fr = flate.NewReaderDict(src, i.dict)
	} else if err := i.fr.(flate.Resetter).Reset(src, i.dict); err != nil {
		return nil, fmt.Errorf("inflate reset: %w", err)
	}

	var r io.Reader = i.fr
	if limit > 0 {
		r = io.LimitReader(i.fr, limit+1)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if limit > 0 && int64(out.Len()) > limit {
		return nil, ErrMessageTooLarge
	}

	if i.takeover {
		i.dict = appendWindow(i.dict, out.Bytes())
	}
	return out.Bytes(), nil
}

// appendWindow keeps the last windowSize bytes of history followed by p.
func appendWindow(history, p []byte) []byte {
	history = append(history, p...)
	if over := len(history) - windowSize; over > 0 {
		history = append(history[:0:0], history[over:]...)
	}
	return history
}
