package replica

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
	"github.com/bobg/sitesync/store/mem"
	"github.com/bobg/sitesync/testutil"
)

func TestBackend(t *testing.T) {
	ctx := context.Background()
	b, err := New(ctx, []store.Backend{mem.New(), mem.New()}, []store.Backend{mem.New()}, 4)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Backend(ctx, t, b)
}

func TestReplicaSets(t *testing.T) {
	ctx := context.Background()

	var (
		m1 = mem.New()
		m2 = mem.New()
	)
	b, err := New(ctx, []store.Backend{m1, m2}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err = m1.Write(ctx, "/only1", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err = m2.Write(ctx, "/only2", []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err = b.Write(ctx, "/both", []byte("3")); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"/both", "/only1"}, testutil.List(ctx, t, m1, "/")); diff != "" {
		t.Errorf("m1 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/both", "/only1", "/only2"}, testutil.List(ctx, t, b, "/")); diff != "" {
		t.Errorf("replica mismatch (-want +got):\n%s", diff)
	}

	got, err := b.Read(ctx, "/only2")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "2" {
		t.Errorf("got %q, want 2", got)
	}

	if err = b.Delete(ctx, "/only1"); err != nil {
		t.Errorf("deleting a file only one replica has: %v", err)
	}
	if err = b.Delete(ctx, "/only1"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestAsync(t *testing.T) {
	ctx := context.Background()

	async := mem.New()
	b, err := New(ctx, []store.Backend{mem.New()}, []store.Backend{async}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err = b.Write(ctx, "/a", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err = b.Write(ctx, "/b", []byte("b")); err != nil {
		t.Fatal(err)
	}
	if err = b.Delete(ctx, "/a"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, aErr := async.Read(ctx, "/a")
		_, bErr := async.Read(ctx, "/b")
		if errors.Is(aErr, sitesync.ErrNotFound) && bErr == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("async replica never caught up: /a %v, /b %v", aErr, bErr)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type failingBackend struct {
	*mem.Backend
}

func (failingBackend) Write(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

func TestAsyncError(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, []store.Backend{mem.New()}, []store.Backend{failingBackend{mem.New()}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err = b.Write(ctx, "/a", []byte("a")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for b.checkErr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("backend never entered the error state")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err = b.Read(ctx, "/a"); err == nil {
		t.Error("expected an error after an async failure")
	}
}

func TestNoSync(t *testing.T) {
	if _, err := New(context.Background(), nil, []store.Backend{mem.New()}, 1); err == nil {
		t.Error("expected an error with no synchronous backends")
	}
}

func TestReinit(t *testing.T) {
	ctx := context.Background()

	async := mem.New()
	b, err := New(ctx, []store.Backend{mem.New()}, []store.Backend{async}, 2)
	if err != nil {
		t.Fatal(err)
	}

	if err = b.Write(ctx, "/early", []byte("x")); !errors.Is(err, errNotInitialized) {
		t.Errorf("got %v writing before Init, want errNotInitialized", err)
	}

	if err = b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err = b.Close(); err != nil {
		t.Fatal(err)
	}

	// Give a stray goroutine time to record an error, if one were left running.
	time.Sleep(50 * time.Millisecond)

	if err = b.Write(ctx, "/closed", []byte("x")); !errors.Is(err, errClosed) {
		t.Errorf("got %v writing after Close, want errClosed", err)
	}

	if err = b.Init(ctx); err != nil {
		t.Fatalf("Init after Close: %s", err)
	}
	defer b.Close()

	if err = b.Write(ctx, "/a", []byte("a")); err != nil {
		t.Fatalf("Write after re-Init: %s", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := async.Read(ctx, "/a"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("async replica never received the write made after re-Init")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type flakyBackend struct {
	*mem.Backend
	fail chan bool
}

func (f flakyBackend) Write(ctx context.Context, path string, content []byte) error {
	if <-f.fail {
		return errors.New("disk on fire")
	}
	return f.Backend.Write(ctx, path, content)
}

func TestInitClearsAsyncError(t *testing.T) {
	ctx := context.Background()

	flaky := flakyBackend{Backend: mem.New(), fail: make(chan bool, 2)}
	flaky.fail <- true
	flaky.fail <- false

	b, err := New(ctx, []store.Backend{mem.New()}, []store.Backend{flaky}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err = b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err = b.Write(ctx, "/a", []byte("a")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for b.checkErr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("backend never entered the error state")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err = b.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err = b.Write(ctx, "/b", []byte("b")); err != nil {
		t.Fatalf("Write after recovering: %s", err)
	}

	deadline = time.Now().Add(5 * time.Second)
	for {
		if _, err := flaky.Backend.Read(ctx, "/b"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("async replica never received the write made after recovering")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
