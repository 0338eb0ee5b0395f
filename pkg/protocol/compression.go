package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// Compression selects how binary transport messages are compressed.
type Compression int

const (
	// CompressionNone exchanges plain text JSON messages.
	CompressionNone Compression = iota
	// CompressionPayload sends each binary message as a standalone zlib payload.
	CompressionPayload
	// CompressionZlibStream shares one zlib context across the connection.
	CompressionZlibStream
)

// String returns the config name of the compression mode.
func (c Compression) String() string {
	switch c {
	case CompressionPayload:
		return "payload"
	case CompressionZlibStream:
		return "zlib-stream"
	default:
		return "none"
	}
}

// ParseCompression parses a config name into a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "payload":
		return CompressionPayload, nil
	case "zlib-stream", "zlib_stream", "stream":
		return CompressionZlibStream, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", s)
	}
}

// zlibSuffix terminates every complete message of a zlib-stream connection.
var zlibSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// Decoder turns raw transport messages of one connection into frames.
type Decoder struct {
	compression Compression
	inflater    *Inflater
}

// NewDecoder returns a decoder for a fresh connection.
func NewDecoder(c Compression) *Decoder {
	d := &Decoder{compression: c}
	if c == CompressionZlibStream {
		d.inflater = NewInflater()
	}
	return d
}

// Decode decodes one transport message. ok is false when the message was a
// partial zlib-stream chunk that has been buffered.
func (d *Decoder) Decode(binary bool, msg []byte) (f Frame, ok bool, err error) {
	data := msg
	if binary {
		switch d.compression {
		case CompressionZlibStream:
			data, ok, err = d.inflater.Feed(msg)
			if err != nil || !ok {
				return Frame{}, false, err
			}
		default:
			data, err = inflatePayload(msg)
			if err != nil {
				return Frame{}, false, err
			}
		}
	}
	f, err = Decode(data)
	if err != nil {
		return Frame{}, false, err
	}
	return f, true, nil
}

// Close releases the decoder's inflater, if any.
func (d *Decoder) Close() {
	if d.inflater != nil {
		d.inflater.Close()
	}
}

func inflatePayload(msg []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(msg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	return out, nil
}

// windowSize is the deflate history a back reference may reach.
const windowSize = 32 << 10

// Inflater decodes a zlib-stream connection. Every message ends on a sync
// flush, which is a deflate block boundary, so each message is inflated on
// its own with the previous output as the dictionary.
type Inflater struct {
	pending bytes.Buffer
	window  []byte
	started bool
	err     error
}

// NewInflater returns an inflater for a fresh connection.
func NewInflater() *Inflater {
	return &Inflater{}
}

// Feed appends a message chunk. When the chunk completes a flushed message
// the whole decompressed message is returned with ok set. Once the stream
// is corrupt every later call fails.
func (in *Inflater) Feed(chunk []byte) ([]byte, bool, error) {
	if in.err != nil {
		return nil, false, in.err
	}
	in.pending.Write(chunk)
	if !bytes.HasSuffix(in.pending.Bytes(), zlibSuffix) {
		return nil, false, nil
	}
	body := in.pending.Bytes()
	defer in.pending.Reset()

	if !in.started {
		if err := checkZlibHeader(body); err != nil {
			return nil, false, in.fail(err)
		}
		body = body[2:]
		in.started = true
	}

	fr := flate.NewReaderDict(bytes.NewReader(body), in.window)
	defer fr.Close()
	out, err := io.ReadAll(fr)
	// The input ends at the flush, before any final block.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, false, in.fail(err)
	}
	in.remember(out)
	return out, true, nil
}

func (in *Inflater) remember(out []byte) {
	w := append(in.window, out...)
	if len(w) > windowSize {
		w = append([]byte(nil), w[len(w)-windowSize:]...)
	}
	in.window = w
}

func (in *Inflater) fail(err error) error {
	in.err = fmt.Errorf("%w: %v", ErrCorruptStream, err)
	in.pending.Reset()
	in.window = nil
	return in.err
}

// checkZlibHeader validates the two byte header opening the stream.
func checkZlibHeader(b []byte) error {
	if len(b) < 2 {
		return errors.New("short zlib header")
	}
	cmf, flg := b[0], b[1]
	switch {
	case cmf&0x0f != 8 || cmf>>4 > 7:
		return fmt.Errorf("unsupported zlib method %#x", cmf)
	case (uint16(cmf)<<8|uint16(flg))%31 != 0:
		return errors.New("zlib header checksum mismatch")
	case flg&0x20 != 0:
		return errors.New("preset zlib dictionary not supported")
	}
	return nil
}

// Close releases the inflater's buffers.
func (in *Inflater) Close() {
	in.pending.Reset()
	in.window = nil
}
