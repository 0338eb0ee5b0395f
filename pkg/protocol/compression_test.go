package protocol

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamChunks compresses each document with a shared zlib context and
// returns one sync-flushed message per document.
func streamChunks(t *testing.T, docs ...string) [][]byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	var out [][]byte
	for _, d := range docs {
		_, err := zw.Write([]byte(d))
		require.NoError(t, err)
		require.NoError(t, zw.Flush())
		out = append(out, append([]byte(nil), buf.Bytes()...))
		buf.Reset()
	}
	return out
}

func TestDecoder_ZlibStream(t *testing.T) {
	chunks := streamChunks(t,
		`{"op":10,"d":{"heartbeat_interval":41250}}`,
		`{"op":0,"s":1,"t":"READY","d":{"session_id":"abc"}}`,
		`{"op":11}`,
	)

	dec := NewDecoder(CompressionZlibStream)
	defer dec.Close()

	f, ok, err := dec.Decode(true, chunks[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, OpHello, f.Op)

	// Split the second message to exercise buffering of partial chunks.
	half := len(chunks[1]) / 2
	_, ok, err = dec.Decode(true, chunks[1][:half])
	require.NoError(t, err)
	assert.False(t, ok)

	f, ok, err = dec.Decode(true, chunks[1][half:])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "READY", f.Event)
	assert.Equal(t, int64(1), f.Sequence)

	f, ok, err = dec.Decode(true, chunks[2])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, OpHeartbeatAck, f.Op)
}

func TestDecoder_ZlibStreamCorrupt(t *testing.T) {
	dec := NewDecoder(CompressionZlibStream)
	defer dec.Close()

	garbage := append([]byte("definitely not zlib"), zlibSuffix...)
	_, _, err := dec.Decode(true, garbage)
	assert.ErrorIs(t, err, ErrCorruptStream)

	// The context is poisoned for the rest of the connection.
	chunks := streamChunks(t, `{"op":11}`)
	_, _, err = dec.Decode(true, chunks[0])
	assert.ErrorIs(t, err, ErrCorruptStream)
}

func TestDecoder_ZlibStreamIncompleteDocument(t *testing.T) {
	dec := NewDecoder(CompressionZlibStream)
	defer dec.Close()

	chunks := streamChunks(t, `{"op":0,"s":1,"t":"X","d":{`, `{"op":}`, `{"op":11}`)

	_, ok, err := dec.Decode(true, chunks[0])
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.NotErrorIs(t, err, ErrCorruptStream)

	_, ok, err = dec.Decode(true, chunks[1])
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	// The compression context is intact, so later messages still decode.
	f, ok, err := dec.Decode(true, chunks[2])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, OpHeartbeatAck, f.Op)
}

func TestDecoder_ZlibStreamBackReferences(t *testing.T) {
	doc := `{"op":0,"s":%d,"t":"MESSAGE_CREATE","d":{"content":"the same words again and again"}}`
	var docs []string
	for i := 1; i <= 200; i++ {
		docs = append(docs, fmt.Sprintf(doc, i))
	}
	chunks := streamChunks(t, docs...)

	dec := NewDecoder(CompressionZlibStream)
	defer dec.Close()
	for i, c := range chunks {
		f, ok, err := dec.Decode(true, c)
		require.NoError(t, err, "message %d", i)
		require.True(t, ok)
		assert.Equal(t, int64(i+1), f.Sequence)
	}
	// Later messages reuse earlier output, so they are much smaller.
	assert.Less(t, len(chunks[len(chunks)-1]), len(chunks[0]))
}

func TestCheckZlibHeader(t *testing.T) {
	assert.NoError(t, checkZlibHeader([]byte{0x78, 0x9c}))
	assert.NoError(t, checkZlibHeader([]byte{0x78, 0x01}))
	assert.Error(t, checkZlibHeader([]byte{0x78}))
	assert.Error(t, checkZlibHeader([]byte{0x79, 0x9c}), "wrong method")
	assert.Error(t, checkZlibHeader([]byte{0x78, 0x9d}), "bad checksum")
	assert.Error(t, checkZlibHeader([]byte{0x78, 0xbb}), "preset dictionary")
}

func TestDecoder_PayloadCompression(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"op":0,"s":3,"t":"GUILD_CREATE","d":{}}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dec := NewDecoder(CompressionPayload)
	f, ok, err := dec.Decode(true, buf.Bytes())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "GUILD_CREATE", f.Event)

	_, _, err = dec.Decode(true, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptStream)
}

func TestDecoder_TextIgnoresCompression(t *testing.T) {
	dec := NewDecoder(CompressionZlibStream)
	defer dec.Close()

	f, ok, err := dec.Decode(false, []byte(`{"op":7,"d":null}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, OpReconnect, f.Op)
}

func TestParseCompression(t *testing.T) {
	tests := map[string]Compression{
		"":            CompressionNone,
		"none":        CompressionNone,
		"payload":     CompressionPayload,
		"zlib-stream": CompressionZlibStream,
		"ZLIB_STREAM": CompressionZlibStream,
	}
	for in, want := range tests {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		if in != "" && in != "ZLIB_STREAM" {
			assert.Equal(t, in, got.String())
		}
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
