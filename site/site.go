// Package site describes the state of a published site
// and computes the difference between two such states.
package site

import (
	"math/big"
)

// Header is an HTTP header served with a resource.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Resource is one served file of a site.
type Resource struct {
	Path string `json:"path"`

	// BlobHash is the content hash of the file,
	// as the little-endian integer reading of its sha256 digest.
	BlobHash *big.Int `json:"blob_hash"`

	// BlobID identifies the stored blob.
	// It is empty for a local resource that has not been uploaded.
	BlobID string `json:"blob_id,omitempty"`

	// Headers are served in this order.
	Headers []Header `json:"headers,omitempty"`
}

// Clone produces a copy of r sharing no memory with it.
func (r Resource) Clone() Resource {
	if r.BlobHash != nil {
		r.BlobHash = new(big.Int).Set(r.BlobHash)
	}
	if r.Headers != nil {
		r.Headers = append([]Header{}, r.Headers...)
	}
	return r
}

// Route maps requests matching Pattern to the resource at Dest.
type Route struct {
	Pattern string `json:"pattern"`
	Dest    string `json:"dest"`
}

// Routes is an ordered list of routes.
type Routes []Route

// Equal tells whether r and other have the same routes in the same order.
func (r Routes) Equal(other Routes) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Metadata is optional descriptive information about a site.
// A nil field is absent,
// which is different from an empty string.
type Metadata struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	ProjectURL  *string `json:"project_url,omitempty"`
	Creator     *string `json:"creator,omitempty"`
	Link        *string `json:"link,omitempty"`
}

// fields lists pointers to m's fields, with their names, in a fixed order.
func (m *Metadata) fields() []metaField {
	return []metaField{
		{"name", &m.Name},
		{"description", &m.Description},
		{"image_url", &m.ImageURL},
		{"project_url", &m.ProjectURL},
		{"creator", &m.Creator},
		{"link", &m.Link},
	}
}

type metaField struct {
	name string
	ptr  **string
}

// IsEmpty tells whether every field of m is absent.
func (m Metadata) IsEmpty() bool {
	for _, f := range m.fields() {
		if *f.ptr != nil {
			return false
		}
	}
	return true
}

// Snapshot is a complete description of a site:
// either what the local workspace intends
// or what was last observed remotely.
type Snapshot struct {
	Metadata  Metadata   `json:"metadata"`
	SiteName  *string    `json:"site_name,omitempty"`
	Resources []Resource `json:"resources"`

	// Routes is nil when the site has no routes at all,
	// which is different from an empty list.
	Routes *Routes `json:"routes,omitempty"`
}

// Str is a convenience for building optional string fields.
func Str(s string) *string {
	return &s
}

// MetaField is a present metadata field, by name.
type MetaField struct {
	Name, Value string
}

// Fields lists the fields of m that are present, in a fixed order.
func (m Metadata) Fields() []MetaField {
	var result []MetaField
	for _, f := range m.fields() {
		if v := *f.ptr; v != nil {
			result = append(result, MetaField{Name: f.name, Value: *v})
		}
	}
	return result
}
