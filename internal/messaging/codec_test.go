// internal/messaging/codec_test.go
package messaging

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/loginfill/api/schemas"
)

func encodeFrame(payload string) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

func TestCodec_WriteFrame(t *testing.T) {
	var out bytes.Buffer
	c := NewCodec(nil, &out, 0)

	require.NoError(t, c.WriteFrame([]byte(`null`)))
	assert.Equal(t, []byte{4, 0, 0, 0, 'n', 'u', 'l', 'l'}, out.Bytes())

	err := c.WriteFrame(make([]byte, MaxOutboundBytes+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCodec_ReadFrame(t *testing.T) {
	t.Run("sequential frames then clean EOF", func(t *testing.T) {
		in := bytes.NewReader(append(encodeFrame(`{"a":1}`), encodeFrame(`"ü"`)...))
		c := NewCodec(in, io.Discard, 0)

		p, err := c.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(p))
		p, err = c.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, `"ü"`, string(p))
		_, err = c.ReadFrame()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("empty frame", func(t *testing.T) {
		c := NewCodec(bytes.NewReader(encodeFrame("")), io.Discard, 0)
		p, err := c.ReadFrame()
		require.NoError(t, err)
		assert.Empty(t, p)
	})

	t.Run("truncated header", func(t *testing.T) {
		c := NewCodec(bytes.NewReader([]byte{7, 0}), io.Discard, 0)
		_, err := c.ReadFrame()
		require.Error(t, err)
		assert.NotEqual(t, io.EOF, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("truncated body", func(t *testing.T) {
		frame := encodeFrame(`{"type":"fill_field"}`)
		c := NewCodec(bytes.NewReader(frame[:10]), io.Discard, 0)
		_, err := c.ReadFrame()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("oversized frame is skipped", func(t *testing.T) {
		big := strings.Repeat("x", 64)
		in := bytes.NewReader(append(encodeFrame(big), encodeFrame(`null`)...))
		c := NewCodec(in, io.Discard, 16)

		_, err := c.ReadFrame()
		assert.ErrorIs(t, err, ErrFrameTooLarge)
		p, err := c.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, "null", string(p))
	})
}

func TestCodec_Messages(t *testing.T) {
	var wire bytes.Buffer
	w := NewCodec(nil, &wire, 0)
	require.NoError(t, w.WriteMessage(schemas.NewFillField("hello")))
	require.NoError(t, w.WriteMessage(schemas.Failure("nope")))

	r := NewCodec(&wire, io.Discard, 0)
	var req schemas.Request
	require.NoError(t, r.ReadMessage(&req))
	assert.Equal(t, schemas.NewFillField("hello"), req)

	var resp schemas.Response
	require.NoError(t, r.ReadMessage(&resp))
	assert.Equal(t, "nope", resp.Message())

	assert.ErrorContains(t, Decode([]byte(`{"type":`), &req), "malformed message")
}
