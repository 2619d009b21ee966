// Package testutil holds helpers shared by the tests of storage backends.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
)

// Backend permits testing a store.Backend implementation.
// It initializes b,
// writes, overwrites, reads, lists, deletes, and clears some files,
// and checks the results at each step.
// The backend must start out empty.
func Backend(ctx context.Context, t *testing.T, b store.Backend) {
	if err := b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	files := map[string][]byte{
		"/index.html":         []byte("<html>hello</html>"),
		"/css/site.css":       []byte("body { margin: 0 }"),
		"/img/deep/logo.svg":  []byte("<svg/>"),
		"/other/unlisted.txt": []byte("elsewhere"),
		"/empty":              {},
	}

	t1 := time.Now()
	for path, content := range files {
		if err := b.Write(ctx, path, content); err != nil {
			t.Fatalf("writing %s: %s", path, err)
		}
	}
	t.Logf("wrote %d files in %s", len(files), time.Since(t1))

	for path, want := range files {
		got, err := b.Read(ctx, path)
		if err != nil {
			t.Fatalf("reading %s: %s", path, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("reading %s: got %q, want %q", path, got, want)
		}
	}

	if err := b.Write(ctx, "/index.html", []byte("<html>bye</html>")); err != nil {
		t.Fatal(err)
	}
	got, err := b.Read(ctx, "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<html>bye</html>" {
		t.Errorf("after overwrite got %q", got)
	}

	if diff := cmp.Diff(sortedKeys(files), List(ctx, t, b, "/")); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/img/deep/logo.svg"}, List(ctx, t, b, "/img/")); diff != "" {
		t.Errorf("prefix listing mismatch (-want +got):\n%s", diff)
	}

	if _, err = b.Read(ctx, "/nonexistent"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("reading nonexistent file: got %v, want ErrNotFound", err)
	}
	if err = b.Delete(ctx, "/nonexistent"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("deleting nonexistent file: got %v, want ErrNotFound", err)
	}

	if err = b.Delete(ctx, "/css/site.css"); err != nil {
		t.Fatal(err)
	}
	if _, err = b.Read(ctx, "/css/site.css"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("reading deleted file: got %v, want ErrNotFound", err)
	}

	if err = b.Clear(ctx, "/other/"); err != nil {
		t.Fatal(err)
	}
	want := []string{"/empty", "/img/deep/logo.svg", "/index.html"}
	if diff := cmp.Diff(want, List(ctx, t, b, "/")); diff != "" {
		t.Errorf("after partial clear (-want +got):\n%s", diff)
	}

	if err = b.Clear(ctx, "/"); err != nil {
		t.Fatal(err)
	}
	if got := List(ctx, t, b, "/"); len(got) != 0 {
		t.Errorf("after clear, got %v", got)
	}
}

// List collects and sorts the paths b lists under prefix.
func List(ctx context.Context, t *testing.T, b store.Backend, prefix string) []string {
	t.Helper()

	var paths []string
	err := b.List(ctx, prefix, func(path string) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(paths)
	return paths
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
