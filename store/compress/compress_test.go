package compress

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/bobg/sitesync/store/mem"
	"github.com/bobg/sitesync/testutil"
)

func TestBackend(t *testing.T) {
	b, err := New(mem.New(), 0)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Backend(context.Background(), t, b)
}

func TestCompressed(t *testing.T) {
	var (
		ctx    = context.Background()
		nested = mem.New()
		data   = bytes.Repeat([]byte("all work and no play "), 500)
	)
	b, err := New(nested, zstd.SpeedBestCompression)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err = b.Write(ctx, "/jack.txt", data); err != nil {
		t.Fatal(err)
	}

	raw, err := nested.Read(ctx, "/jack.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) >= len(data) {
		t.Errorf("stored %d bytes for %d bytes of input", len(raw), len(data))
	}

	got, err := b.Read(ctx, "/jack.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}
}
