package site

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/sitesync"
)

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
})

func res(path string, hash int64, hdrs ...Header) Resource {
	return Resource{Path: path, BlobHash: big.NewInt(hash), Headers: hdrs}
}

func TestComputeDiffResources(t *testing.T) {
	local := Snapshot{
		Resources: []Resource{
			res("/b", 2),
			res("/a", 1),
			res("/d", 40),
		},
	}
	remote := Snapshot{
		Resources: []Resource{
			res("/c", 3),
			res("/a", 1, Header{Key: "x-ignored", Value: "headers are not compared"}),
			res("/d", 4),
		},
	}

	got, err := ComputeDiff(local, remote)
	if err != nil {
		t.Fatal(err)
	}

	want := []ResourceOp{
		{Kind: Unchanged, Path: "/a"},
		{Kind: Created, Resource: res("/b", 2)},
		{Kind: Deleted, Path: "/d"},
		{Kind: Created, Resource: res("/d", 40)},
		{Kind: Deleted, Path: "/c"},
	}
	if diff := cmp.Diff(want, got.Resources, bigIntComparer); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got.Metadata.Op != Noop || got.SiteName.Op != Noop || got.Routes.Op != Noop {
		t.Errorf("unexpected non-resource ops: %+v", got)
	}
	if !got.HasChanges() {
		t.Error("HasChanges is false")
	}
}

func TestComputeDiffPure(t *testing.T) {
	local := Snapshot{
		SiteName:  Str("site"),
		Resources: []Resource{res("/x", 1), res("/y", 2)},
		Routes:    &Routes{{Pattern: "/*", Dest: "/x"}},
	}
	remote := Snapshot{Resources: []Resource{res("/z", 3)}}

	d1, err := ComputeDiff(local, remote)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := ComputeDiff(local, remote)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d1, d2, bigIntComparer); diff != "" {
		t.Errorf("repeated diffs differ (-first +second):\n%s", diff)
	}
}

func TestComputeDiffNoAliasing(t *testing.T) {
	local := Snapshot{
		Resources: []Resource{
			res("/new", 1, Header{Key: "content-type", Value: "text/html"}),
			res("/changed", 2, Header{Key: "cache-control", Value: "no-cache"}),
		},
		Routes: &Routes{{Pattern: "/*", Dest: "/new"}},
	}
	remote := Snapshot{Resources: []Resource{res("/changed", 3)}}

	d, err := ComputeDiff(local, remote)
	if err != nil {
		t.Fatal(err)
	}
	want, err := ComputeDiff(local, remote)
	if err != nil {
		t.Fatal(err)
	}

	for i := range local.Resources {
		local.Resources[i].Headers[0].Value = "mutated"
		local.Resources[i].BlobHash.SetInt64(99)
	}
	(*local.Routes)[0].Dest = "/mutated"

	if diff := cmp.Diff(want, d, bigIntComparer); diff != "" {
		t.Errorf("diff changed after mutating the local snapshot (-want +got):\n%s", diff)
	}
}

func TestComputeDiffNoChanges(t *testing.T) {
	snap := Snapshot{
		Metadata:  Metadata{Description: Str("d")},
		SiteName:  Str("n"),
		Resources: []Resource{res("/x", 1)},
		Routes:    &Routes{},
	}
	d, err := ComputeDiff(snap, snap)
	if err != nil {
		t.Fatal(err)
	}
	if d.HasChanges() {
		t.Errorf("got changes comparing a snapshot with itself: %+v", d)
	}
}

func TestComputeDiffMetadata(t *testing.T) {
	cases := []struct {
		name          string
		local, remote Metadata
		want          MetadataOp
	}{
		{
			name:   "absent local never overwrites",
			remote: Metadata{Description: Str("remote")},
		},
		{
			name:   "equal",
			local:  Metadata{Link: Str("l")},
			remote: Metadata{Link: Str("l"), Creator: Str("c")},
		},
		{
			name:   "changed field",
			local:  Metadata{Link: Str("new"), Creator: Str("c")},
			remote: Metadata{Link: Str("old"), Creator: Str("c")},
			want:   MetadataOp{Op: Update, Data: Metadata{Link: Str("new"), Creator: Str("c")}},
		},
		{
			name:  "new field",
			local: Metadata{ImageURL: Str("i")},
			want:  MetadataOp{Op: Update, Data: Metadata{ImageURL: Str("i")}},
		},
		{
			name:   "empty string is a value",
			local:  Metadata{Description: Str("")},
			remote: Metadata{},
			want:   MetadataOp{Op: Update, Data: Metadata{Description: Str("")}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := ComputeDiff(Snapshot{Metadata: c.local}, Snapshot{Metadata: c.remote})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(c.want, d.Metadata); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestComputeDiffSiteName(t *testing.T) {
	cases := []struct {
		local, remote *string
		want          NameOp
	}{
		{},
		{remote: Str("r")},
		{local: Str("r"), remote: Str("r")},
		{local: Str("l"), remote: Str("r"), want: NameOp{Op: Update, Name: "l"}},
		{local: Str("l"), want: NameOp{Op: Update, Name: "l"}},
	}
	for i, c := range cases {
		d, err := ComputeDiff(Snapshot{SiteName: c.local}, Snapshot{SiteName: c.remote})
		if err != nil {
			t.Fatal(err)
		}
		if d.SiteName != c.want {
			t.Errorf("case %d: got %+v, want %+v", i, d.SiteName, c.want)
		}
	}
}

func TestComputeDiffRoutes(t *testing.T) {
	ab := &Routes{{Pattern: "/a", Dest: "/1"}, {Pattern: "/b", Dest: "/2"}}
	ba := &Routes{{Pattern: "/b", Dest: "/2"}, {Pattern: "/a", Dest: "/1"}}
	empty := &Routes{}

	cases := []struct {
		name          string
		local, remote *Routes
		want          RoutesOp
	}{
		{name: "both absent"},
		{name: "both empty", local: empty, remote: empty},
		{name: "same", local: ab, remote: ab},
		{name: "reordered", local: ba, remote: ab, want: RoutesOp{Op: Update, Routes: *ba}},
		{name: "absent vs empty", local: empty, want: RoutesOp{Op: Update, Routes: Routes{}}},
		{name: "empty vs absent", remote: empty, want: RoutesOp{Op: Update}},
		{name: "removed", remote: ab, want: RoutesOp{Op: Update}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := ComputeDiff(Snapshot{Routes: c.local}, Snapshot{Routes: c.remote})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(c.want, d.Routes); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestComputeDiffDuplicatePath(t *testing.T) {
	dup := Snapshot{Resources: []Resource{res("/a", 1), res("/a", 2)}}
	if _, err := ComputeDiff(dup, Snapshot{}); !errors.Is(err, sitesync.ErrDuplicatePath) {
		t.Errorf("duplicate local: got %v, want ErrDuplicatePath", err)
	}
	if _, err := ComputeDiff(Snapshot{}, dup); !errors.Is(err, sitesync.ErrDuplicatePath) {
		t.Errorf("duplicate remote: got %v, want ErrDuplicatePath", err)
	}
}

func TestPrepend(t *testing.T) {
	d := Diff{Resources: []ResourceOp{{Kind: Deleted, Path: "/a"}}}
	d.Prepend(ResourceOp{Kind: RemovedRoutes})
	want := []ResourceOp{{Kind: RemovedRoutes}, {Kind: Deleted, Path: "/a"}}
	if diff := cmp.Diff(want, d.Resources, bigIntComparer); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTeardownDiff(t *testing.T) {
	remote := Snapshot{
		Resources: []Resource{res("/b", 2), res("/a", 1)},
		Routes:    &Routes{},
	}
	d, err := TeardownDiff(remote)
	if err != nil {
		t.Fatal(err)
	}
	want := []ResourceOp{
		{Kind: Deleted, Path: "/a"},
		{Kind: Deleted, Path: "/b"},
		{Kind: RemovedRoutes},
		{Kind: BurnedSite},
	}
	if diff := cmp.Diff(want, d.Resources, bigIntComparer); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
