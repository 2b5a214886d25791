// internal/messaging/codec.go
package messaging

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// MaxOutboundBytes is the largest message a native host may send to the
// browser.
const MaxOutboundBytes = 1 << 20

// DefaultMaxInboundBytes caps frames read from the browser unless configured
// otherwise.
const DefaultMaxInboundBytes = 1 << 20

const headerSize = 4

// ErrFrameTooLarge is returned for frames above the configured cap. The
// payload has already been discarded, so the stream stays usable.
var ErrFrameTooLarge = errors.New("message exceeds size limit")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec reads and writes native-messaging frames: a 4-byte little-endian
// length followed by that many bytes of UTF-8 JSON.
type Codec struct {
	r       io.Reader
	w       io.Writer
	maxIn   int
	header  [headerSize]byte
	writeMu sync.Mutex
}

// NewCodec builds a codec. maxIn <= 0 selects DefaultMaxInboundBytes.
func NewCodec(r io.Reader, w io.Writer, maxIn int) *Codec {
	if maxIn <= 0 {
		maxIn = DefaultMaxInboundBytes
	}
	return &Codec{r: r, w: w, maxIn: maxIn}
}

// ReadFrame returns the next payload. It returns io.EOF only when the stream
// ends cleanly between frames.
func (c *Codec) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(c.r, c.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}
	n := binary.LittleEndian.Uint32(c.header[:])
	if uint64(n) > uint64(c.maxIn) {
		if _, err := io.CopyN(io.Discard, c.r, int64(n)); err != nil {
			return nil, fmt.Errorf("failed to skip oversized frame: %w", err)
		}
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, n, c.maxIn)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one payload. It is safe for concurrent use.
func (c *Codec) WriteFrame(payload []byte) error {
	if len(payload) > MaxOutboundBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, len(payload), MaxOutboundBytes)
	}
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame body: %w", err)
	}
	return nil
}

// ReadMessage reads a frame and decodes it into v.
func (c *Codec) ReadMessage(v interface{}) error {
	payload, err := c.ReadFrame()
	if err != nil {
		return err
	}
	return Decode(payload, v)
}

// WriteMessage encodes v and writes it as one frame.
func (c *Codec) WriteMessage(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return c.WriteFrame(payload)
}

// Decode unmarshals one payload.
func Decode(payload []byte, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	return nil
}
