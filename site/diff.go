package site

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync"
)

// Op says whether a field of a Diff calls for a change.
type Op int

const (
	Noop Op = iota
	Update
)

func (o Op) String() string {
	if o == Update {
		return "update"
	}
	return "noop"
}

// MetadataOp is the metadata part of a Diff.
// When Op is Update,
// Data holds exactly the fields the local side set.
type MetadataOp struct {
	Op   Op
	Data Metadata
}

// NameOp is the site-name part of a Diff.
type NameOp struct {
	Op   Op
	Name string
}

// RoutesOp is the routes part of a Diff.
// When Op is Update,
// Routes is the complete new list,
// possibly empty.
type RoutesOp struct {
	Op     Op
	Routes Routes
}

// ResourceOpKind tells what a ResourceOp does.
type ResourceOpKind int

const (
	Unchanged ResourceOpKind = iota + 1
	Created
	Deleted

	// RemovedRoutes and BurnedSite are not about any one resource.
	// They travel in the resource list so that they take effect
	// at a chosen point among the resource operations.
	RemovedRoutes
	BurnedSite
)

func (k ResourceOpKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case RemovedRoutes:
		return "removed-routes"
	case BurnedSite:
		return "burned-site"
	}
	return fmt.Sprintf("ResourceOpKind(%d)", int(k))
}

// ResourceOp is one entry in the resource part of a Diff.
// Path is set for Unchanged and Deleted,
// Resource for Created.
type ResourceOp struct {
	Kind     ResourceOpKind
	Path     string
	Resource Resource
}

// Diff is the set of operations that brings a remote site
// into agreement with a local one.
type Diff struct {
	Metadata  MetadataOp
	SiteName  NameOp
	Resources []ResourceOp
	Routes    RoutesOp
}

// Prepend puts ops ahead of d's resource operations.
// This is how a caller makes clearing routes or burning the site
// happen before the content changes.
func (d *Diff) Prepend(ops ...ResourceOp) {
	d.Resources = append(append([]ResourceOp(nil), ops...), d.Resources...)
}

// HasChanges tells whether applying d would change anything.
func (d Diff) HasChanges() bool {
	if d.Metadata.Op != Noop || d.SiteName.Op != Noop || d.Routes.Op != Noop {
		return true
	}
	for _, op := range d.Resources {
		if op.Kind != Unchanged {
			return true
		}
	}
	return false
}

// ComputeDiff compares a local snapshot to a remote one.
//
// Metadata and the site name are updated only when the local side sets a value
// that differs from the remote one;
// an absent local value never overwrites a remote one.
//
// Resources are compared by content hash alone.
// A path in both snapshots with equal hashes is Unchanged,
// even if its headers differ.
// A path only in local is Created,
// a path only in remote is Deleted.
// A path in both with different hashes is Deleted and then Created.
// Local paths come first, sorted,
// followed by the remote-only paths, sorted.
//
// Routes are updated when the two lists differ in any way,
// including one being absent and the other empty.
//
// ComputeDiff fails with sitesync.ErrDuplicatePath
// if either snapshot lists a path twice.
func ComputeDiff(local, remote Snapshot) (Diff, error) {
	var d Diff

	localByPath, err := byPath(local.Resources)
	if err != nil {
		return d, errors.Wrap(err, "local snapshot")
	}
	remoteByPath, err := byPath(remote.Resources)
	if err != nil {
		return d, errors.Wrap(err, "remote snapshot")
	}

	if data, changed := diffMetadata(local.Metadata, remote.Metadata); changed {
		d.Metadata = MetadataOp{Op: Update, Data: data}
	}
	if local.SiteName != nil && (remote.SiteName == nil || *local.SiteName != *remote.SiteName) {
		d.SiteName = NameOp{Op: Update, Name: *local.SiteName}
	}

	localPaths := sortedPaths(localByPath)
	for _, p := range localPaths {
		l := localByPath[p]
		r, ok := remoteByPath[p]
		switch {
		case !ok:
			d.Resources = append(d.Resources, ResourceOp{Kind: Created, Resource: l.Clone()})
		case sameHash(l, r):
			d.Resources = append(d.Resources, ResourceOp{Kind: Unchanged, Path: p})
		default:
			d.Resources = append(d.Resources,
				ResourceOp{Kind: Deleted, Path: p},
				ResourceOp{Kind: Created, Resource: l.Clone()},
			)
		}
	}
	for _, p := range sortedPaths(remoteByPath) {
		if _, ok := localByPath[p]; !ok {
			d.Resources = append(d.Resources, ResourceOp{Kind: Deleted, Path: p})
		}
	}

	if !routesEqual(local.Routes, remote.Routes) {
		var routes Routes
		if local.Routes != nil {
			routes = append(Routes{}, (*local.Routes)...)
		}
		d.Routes = RoutesOp{Op: Update, Routes: routes}
	}

	return d, nil
}

// TeardownDiff produces the Diff that empties and then destroys a remote site:
// every resource is deleted,
// its routes (if any) are removed,
// and the site is burned last.
func TeardownDiff(remote Snapshot) (Diff, error) {
	var d Diff

	m, err := byPath(remote.Resources)
	if err != nil {
		return d, errors.Wrap(err, "remote snapshot")
	}
	for _, p := range sortedPaths(m) {
		d.Resources = append(d.Resources, ResourceOp{Kind: Deleted, Path: p})
	}
	if remote.Routes != nil {
		d.Resources = append(d.Resources, ResourceOp{Kind: RemovedRoutes})
	}
	d.Resources = append(d.Resources, ResourceOp{Kind: BurnedSite})
	return d, nil
}

func diffMetadata(local, remote Metadata) (Metadata, bool) {
	var (
		out     Metadata
		changed bool
		lf      = local.fields()
		rf      = remote.fields()
		of      = out.fields()
	)
	for i := range lf {
		l := *lf[i].ptr
		if l == nil {
			continue
		}
		v := *l
		*of[i].ptr = &v
		if r := *rf[i].ptr; r == nil || *r != v {
			changed = true
		}
	}
	return out, changed
}

func routesEqual(a, b *Routes) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameHash(a, b Resource) bool {
	if a.BlobHash == nil || b.BlobHash == nil {
		return false
	}
	return a.BlobHash.Cmp(b.BlobHash) == 0
}

func byPath(resources []Resource) (map[string]Resource, error) {
	m := make(map[string]Resource, len(resources))
	for _, r := range resources {
		if _, ok := m[r.Path]; ok {
			return nil, errors.Wrapf(sitesync.ErrDuplicatePath, "%s", r.Path)
		}
		m[r.Path] = r
	}
	return m, nil
}

func sortedPaths(m map[string]Resource) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
