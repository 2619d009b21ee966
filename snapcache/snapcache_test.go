package snapcache

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/site"
)

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
})

func TestCache(t *testing.T) {
	ctx := context.Background()

	c, err := OpenFile(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Get(ctx, "0x1"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	// Larger than any float64 can hold exactly.
	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)

	snaps := map[string]site.Snapshot{
		"0x1": {
			Metadata: site.Metadata{Description: site.Str(""), Link: site.Str("https://example.com")},
			SiteName: site.Str("one"),
			Resources: []site.Resource{
				{
					Path:     "/index.html",
					BlobHash: huge,
					BlobID:   "blob",
					Headers: []site.Header{
						{Key: "z", Value: "1"},
						{Key: "a", Value: "2"},
					},
				},
				{Path: "/other", BlobHash: big.NewInt(0)},
			},
			Routes: &site.Routes{{Pattern: "/b", Dest: "/index.html"}, {Pattern: "/a", Dest: "/other"}},
		},
		"0x2": {
			Routes: &site.Routes{},
		},
		"0x3": {},
	}

	for id, snap := range snaps {
		if err := c.Put(ctx, id, snap); err != nil {
			t.Fatal(err)
		}
	}
	for id, want := range snaps {
		got, err := c.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got, bigIntComparer); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", id, diff)
		}
	}

	var ids []string
	err = c.Sites(ctx, func(id string) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"0x1", "0x2", "0x3"}, ids); diff != "" {
		t.Errorf("sites mismatch (-want +got):\n%s", diff)
	}

	replacement := site.Snapshot{SiteName: site.Str("replaced")}
	if err := c.Put(ctx, "0x1", replacement); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "0x1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(replacement, got, bigIntComparer); diff != "" {
		t.Errorf("replacement mismatch (-want +got):\n%s", diff)
	}

	if err := c.Delete(ctx, "0x1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "0x1"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("after delete, got %v, want ErrNotFound", err)
	}
}
