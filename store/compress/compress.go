// Package compress implements a storage backend that compresses and uncompresses files
// on their way into and out of a nested backend.
package compress

import (
	"context"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/bobg/sitesync/store"
)

var _ store.Backend = &Backend{}

// Backend stores zstd-compressed file content in a nested backend.
// Paths are unchanged.
type Backend struct {
	b   store.Backend
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New produces a new Backend wrapping b.
// The level is one of the zstd.EncoderLevel constants;
// zero means zstd.SpeedDefault.
func New(b store.Backend, level zstd.EncoderLevel) (*Backend, error) {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithZeroFrames(true))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	return &Backend{b: b, enc: enc, dec: dec}, nil
}

// Init implements store.Backend.
func (b *Backend) Init(ctx context.Context) error {
	return b.b.Init(ctx)
}

// Write implements store.Backend.
func (b *Backend) Write(ctx context.Context, path string, content []byte) error {
	return b.b.Write(ctx, path, b.enc.EncodeAll(content, nil))
}

// Read implements store.Backend.
func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	compressed, err := b.b.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	content, err := b.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing %s", path)
	}
	if content == nil {
		content = []byte{}
	}
	return content, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, path string) error {
	return b.b.Delete(ctx, path)
}

// List implements store.Backend.
func (b *Backend) List(ctx context.Context, prefix string, f func(string) error) error {
	return b.b.List(ctx, prefix, f)
}

// Clear implements store.Backend.
func (b *Backend) Clear(ctx context.Context, prefix string) error {
	return b.b.Clear(ctx, prefix)
}

// Close implements store.Backend.
// The codecs stay usable so the backend can be initialized again.
func (b *Backend) Close() error {
	return b.b.Close()
}

func init() {
	store.Register("compress", func(ctx context.Context, conf map[string]interface{}) (store.Backend, error) {
		var level zstd.EncoderLevel
		if name, ok := conf["level"].(string); ok {
			var found bool
			found, level = zstd.EncoderLevelFromString(name)
			if !found {
				return nil, errors.Errorf("unknown zstd level %q", name)
			}
		}
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, level)
	})
}
