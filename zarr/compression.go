package zarr

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/qri-io/dataset/compression"
)

// CompressionMeta defines the chunk compression settings this package
// understands, serialized into ".zarray" under the "compressor" key.
type CompressionMeta struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

const codecZstd = "zstd"

// DefaultCompression is the fixed policy applied to every data variable on
// store creation: zstd at a moderate level, no byte shuffling.
func DefaultCompression() *CompressionMeta {
	return &CompressionMeta{ID: codecZstd, Clevel: 2, Shuffle: 0}
}

// Compressor wraps w so that bytes written to the returned WriteCloser land
// in w compressed. Closing the returned writer flushes the stream but leaves
// w open.
func (m *CompressionMeta) Compressor(w io.Writer) (io.WriteCloser, error) {
	if m == nil {
		return nopWriteCloser{w}, nil
	}
	switch m.ID {
	case codecZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(m.Clevel)))
	default:
		return nil, fmt.Errorf("unsupported compression codec: %q", m.ID)
	}
}

// Decompressor wraps r in a decompressing reader. zstd is handled natively,
// other codec IDs fall through to the dataset compression registry. Closing
// the returned reader releases the decoder but leaves r open; the caller
// keeps ownership of r.
func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	if m == nil {
		return io.NopCloser(r), nil
	}
	switch m.ID {
	case codecZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return compression.Decompressor(m.ID, r)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
