// Package compression selects and applies a segment compression codec for
// the index store, mirroring the teacher's pluggable HTTP compressor
// registry in pkg/compression but applied to on-disk segment bytes
// instead of HTTP bodies.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses and decompresses segment payloads.
type Codec interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Registry resolves a codec by name, matching IndexConfig.Codec.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns a Registry pre-populated with every supported codec.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.Register(&noneCodec{})
	r.Register(&snappyCodec{})
	r.Register(&lz4Codec{})
	if zc, err := newZstdCodec(); err == nil {
		r.Register(zc)
	}
	return r
}

// Register adds or replaces a codec under its own Name().
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.Name()] = c
}

// Get resolves name to a codec, defaulting to "none" when unknown.
func (r *Registry) Get(name string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.codecs[name]; ok {
		return c
	}
	return r.codecs["none"]
}

type noneCodec struct{}

func (noneCodec) Name() string                    { return "none" }
func (noneCodec) Encode(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) Decode(data []byte) ([]byte, error) { return data, nil }

type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }
func (snappyCodec) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}
func (snappyCodec) Decode(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }
func (lz4Codec) Encode(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := lz4.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 encode close: %w", err)
	}
	return buf.Bytes(), nil
}
func (lz4Codec) Decode(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decode: %w", err)
	}
	return out, nil
}

// zstdCodec wraps a shared encoder/decoder pair; both are safe for
// concurrent use once constructed.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (z *zstdCodec) Name() string { return "zstd" }
func (z *zstdCodec) Encode(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}
func (z *zstdCodec) Decode(data []byte) ([]byte, error) {
	return z.dec.DecodeAll(data, nil)
}
