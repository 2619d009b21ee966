package workspace

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store/mem"
)

// hookBackend is a mem.Backend whose Init and Write can be made to block or fail.
type hookBackend struct {
	*mem.Backend

	inits    int32
	closes   int32
	initGate chan struct{} // if non-nil, Init waits for it to close
	initErr  error
	writeErr error
}

func newHookBackend() *hookBackend {
	return &hookBackend{Backend: mem.New()}
}

func (b *hookBackend) Init(ctx context.Context) error {
	atomic.AddInt32(&b.inits, 1)
	if b.initGate != nil {
		<-b.initGate
	}
	if b.initErr != nil {
		return b.initErr
	}
	return b.Backend.Init(ctx)
}

func (b *hookBackend) Close() error {
	atomic.AddInt32(&b.closes, 1)
	return b.Backend.Close()
}

func (b *hookBackend) Write(ctx context.Context, path string, content []byte) error {
	if b.writeErr != nil {
		return b.writeErr
	}
	return b.Backend.Write(ctx, path, content)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) get() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func mounted(t *testing.T, b *hookBackend, root, mountPath string) *Workspace {
	t.Helper()
	w, err := New(b, root, mountPath, new(Registry))
	if err != nil {
		t.Fatal(err)
	}
	if err = w.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestNewMountConfiguration(t *testing.T) {
	cases := []struct {
		root, mountPath string
		wantErr         bool
	}{
		{root: "/site"},
		{root: "/site", mountPath: "/site"},
		{root: "/data/site", mountPath: "/data"},
		{root: "/data/site", mountPath: "/"},
		{root: "/data/site", mountPath: "/dat", wantErr: true},
		{root: "/site", mountPath: "/other", wantErr: true},
		{root: "/site", mountPath: "/site/sub", wantErr: true},
	}
	for _, c := range cases {
		_, err := New(mem.New(), c.root, c.mountPath, nil)
		if c.wantErr {
			if !errors.Is(err, sitesync.ErrInvalidMountConfiguration) {
				t.Errorf("root %s, mount %s: got %v, want ErrInvalidMountConfiguration", c.root, c.mountPath, err)
			}
		} else if err != nil {
			t.Errorf("root %s, mount %s: %s", c.root, c.mountPath, err)
		}
	}
}

func TestNotMounted(t *testing.T) {
	ctx := context.Background()
	w, err := New(mem.New(), "/site", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	checks := map[string]error{
		"write":  w.WriteFile(ctx, "/a", []byte("a")),
		"delete": w.DeleteFile(ctx, "/a"),
		"clear":  w.Clear(ctx),
	}
	_, checks["read"] = w.ReadFile(ctx, "/a")
	_, checks["list"] = w.ListFiles(ctx)

	for name, err := range checks {
		if !errors.Is(err, sitesync.ErrNotMounted) {
			t.Errorf("%s: got %v, want ErrNotMounted", name, err)
		}
	}
}

func TestCRUDNotifications(t *testing.T) {
	var (
		ctx = context.Background()
		w   = mounted(t, newHookBackend(), "/site", "")
		r1  recorder
		r2  recorder
	)
	w.OnFileChange(r1.record)
	unsub := w.OnFileChange(r2.record)

	if err := w.WriteFile(ctx, "index.html", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile(ctx, "/css//site.css", []byte("body{}")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile(ctx, "/index.html", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	got, err := w.ReadFile(ctx, "/index.html")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("got %q, want v2", got)
	}

	paths, err := w.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(paths)
	if diff := cmp.Diff([]string{"/css/site.css", "/index.html"}, paths); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}

	unsub()
	unsub()

	if err = w.DeleteFile(ctx, "/css/site.css"); err != nil {
		t.Fatal(err)
	}
	if err = w.DeleteFile(ctx, "/css/site.css"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	if _, err = w.ReadFile(ctx, "/css/site.css"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("read after delete: got %v, want ErrNotFound", err)
	}

	want1 := []Event{
		{Kind: Updated, Path: "/index.html", Content: []byte("v1")},
		{Kind: Updated, Path: "/css/site.css", Content: []byte("body{}")},
		{Kind: Updated, Path: "/index.html", Content: []byte("v2")},
		{Kind: Removed, Path: "/css/site.css"},
	}
	if diff := cmp.Diff(want1, r1.get()); diff != "" {
		t.Errorf("observer 1 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want1[:3], r2.get()); diff != "" {
		t.Errorf("observer 2 mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFailureNoNotification(t *testing.T) {
	var (
		ctx = context.Background()
		b   = newHookBackend()
		w   = mounted(t, b, "/", "")
		r   recorder
	)
	w.OnFileChange(r.record)

	b.writeErr = errors.New("disk full")
	err := w.WriteFile(ctx, "/a", []byte("a"))
	if !errors.Is(err, sitesync.ErrIO) {
		t.Errorf("got %v, want ErrIO", err)
	}
	if !errors.Is(err, b.writeErr) {
		t.Errorf("got %v, want it to wrap the backend error", err)
	}
	if got := r.get(); len(got) != 0 {
		t.Errorf("got %d events after failed write", len(got))
	}
	if _, err = w.ReadFile(ctx, "/a"); !errors.Is(err, sitesync.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestClear(t *testing.T) {
	var (
		ctx = context.Background()
		w   = mounted(t, newHookBackend(), "/site", "")
		r   recorder
	)
	for _, p := range []string{"/a", "/b/c", "/b/d/e"} {
		if err := w.WriteFile(ctx, p, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	w.OnFileChange(r.record)
	if err := w.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	paths, err := w.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Errorf("got %v after clear", paths)
	}
	if got := r.get(); len(got) != 0 {
		t.Errorf("got %d events during clear", len(got))
	}
}

func TestSharedMount(t *testing.T) {
	var (
		ctx = context.Background()
		b   = newHookBackend()
		reg = new(Registry)
	)
	wa, err := New(b, "/data/a", "/data", reg)
	if err != nil {
		t.Fatal(err)
	}
	wb, err := New(b, "/data/b", "/data", reg)
	if err != nil {
		t.Fatal(err)
	}
	if wa.MountKey() != wb.MountKey() {
		t.Fatalf("mount keys differ: %s vs %s", wa.MountKey(), wb.MountKey())
	}
	for _, w := range []*Workspace{wa, wb} {
		if err = w.Mount(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if err = wa.WriteFile(ctx, "/x", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err = wb.WriteFile(ctx, "/y", []byte("b")); err != nil {
		t.Fatal(err)
	}

	paths, err := wa.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"/x"}, paths); diff != "" {
		t.Errorf("workspace a listing (-want +got):\n%s", diff)
	}

	raw, err := b.Read(ctx, "/b/y")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "b" {
		t.Errorf("backend has %q at /b/y", raw)
	}

	if err = wa.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	paths, err = wb.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"/y"}, paths); diff != "" {
		t.Errorf("workspace b listing after clearing a (-want +got):\n%s", diff)
	}
}

func TestConcurrentMount(t *testing.T) {
	var (
		ctx = context.Background()
		b   = newHookBackend()
		reg = new(Registry)
	)
	b.initGate = make(chan struct{})

	w, err := New(b, "/site", "", reg)
	if err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- w.Mount(ctx) }()
	}

	deadline := time.Now().Add(5 * time.Second)
	for reg.Pending(w.MountKey()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for both mounts to attach")
		}
		time.Sleep(time.Millisecond)
	}
	if got := w.State(); got != Mounting {
		t.Errorf("state during mount is %s, want mounting", got)
	}
	close(b.initGate)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(&b.inits); n != 1 {
		t.Errorf("got %d initializations, want 1", n)
	}
	if reg.Pending(w.MountKey()) != 0 {
		t.Error("registry entry not removed after mount")
	}
	if got := w.State(); got != Mounted {
		t.Errorf("state is %s, want mounted", got)
	}

	if err = w.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&b.inits); n != 1 {
		t.Errorf("remount of a mounted workspace initialized again (%d)", n)
	}
}

func TestMountFailureRetry(t *testing.T) {
	var (
		ctx = context.Background()
		b   = newHookBackend()
		reg = new(Registry)
	)
	b.initErr = errors.New("no storage")

	w, err := New(b, "/site", "", reg)
	if err != nil {
		t.Fatal(err)
	}
	err = w.Mount(ctx)
	if !errors.Is(err, sitesync.ErrMountUnavailable) {
		t.Fatalf("got %v, want ErrMountUnavailable", err)
	}
	if got := w.State(); got != Unmounted {
		t.Errorf("state after failed mount is %s", got)
	}
	if reg.Pending(w.MountKey()) != 0 {
		t.Error("registry entry not cleared after failure")
	}

	b.initErr = nil
	if err = w.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&b.inits); n != 2 {
		t.Errorf("got %d initializations, want 2", n)
	}
}

func TestUnmount(t *testing.T) {
	var (
		ctx = context.Background()
		b   = newHookBackend()
		w   = mounted(t, b, "/site", "")
		r   recorder
	)
	w.OnFileChange(r.record)

	if err := w.Unmount(); err != nil {
		t.Fatal(err)
	}
	if err := w.Unmount(); err != nil {
		t.Fatal(err)
	}
	if w.subs.Len() != 0 {
		t.Error("observers survived unmount")
	}
	if err := w.WriteFile(ctx, "/a", nil); !errors.Is(err, sitesync.ErrNotMounted) {
		t.Errorf("got %v, want ErrNotMounted", err)
	}

	if err := w.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFile(ctx, "/a", nil); err != nil {
		t.Fatal(err)
	}
	if got := r.get(); len(got) != 0 {
		t.Errorf("old observer got %d events after remount", len(got))
	}
}

func TestUnmountDuringMount(t *testing.T) {
	var (
		ctx = context.Background()
		b   = newHookBackend()
		reg = new(Registry)
	)
	b.initGate = make(chan struct{})

	w, err := New(b, "/ws", "", reg)
	if err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 1)
	go func() { errs <- w.Mount(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for reg.Pending("/ws") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the mount to start")
		}
		time.Sleep(time.Millisecond)
	}

	if err = w.Unmount(); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&b.closes); n != 0 {
		t.Errorf("backend closed %d time(s) while its init was in flight", n)
	}

	close(b.initGate)

	if err = <-errs; !errors.Is(err, sitesync.ErrNotMounted) {
		t.Errorf("got %v from the interrupted mount, want ErrNotMounted", err)
	}
	if got := w.State(); got != Unmounted {
		t.Errorf("state after unmount-then-init-settles is %s, want unmounted", got)
	}
	if n := atomic.LoadInt32(&b.closes); n != 1 {
		t.Errorf("got %d closes after the init settled, want 1", n)
	}
	if err = w.WriteFile(ctx, "/a", nil); !errors.Is(err, sitesync.ErrNotMounted) {
		t.Errorf("got %v writing, want ErrNotMounted", err)
	}

	b.initGate = nil
	if err = w.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if err = w.WriteFile(ctx, "/a", nil); err != nil {
		t.Fatal(err)
	}
}

func TestAssets(t *testing.T) {
	var (
		ctx = context.Background()
		w   = mounted(t, newHookBackend(), "/site", "")
	)
	files := map[string]string{
		"/z.txt":      "zed",
		"/index.html": "<html/>",
		"/a/b.css":    "b{}",
	}
	for p, c := range files {
		if err := w.WriteFile(ctx, p, []byte(c)); err != nil {
			t.Fatal(err)
		}
	}

	assets, err := w.Assets(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var gotPaths []string
	for _, a := range assets {
		gotPaths = append(gotPaths, a.Path)

		want, err := sitesync.Hash([]byte(files[a.Path]))
		if err != nil {
			t.Fatal(err)
		}
		if a.Hash != want {
			t.Errorf("%s: hash %s, want %s", a.Path, a.Hash, want)
		}
		if a.HashInt.Cmp(want.Int()) != 0 {
			t.Errorf("%s: integer hash mismatch", a.Path)
		}
		if string(a.Content) != files[a.Path] {
			t.Errorf("%s: content %q", a.Path, a.Content)
		}
	}
	if diff := cmp.Diff([]string{"/a/b.css", "/index.html", "/z.txt"}, gotPaths); diff != "" {
		t.Errorf("asset order (-want +got):\n%s", diff)
	}
}
