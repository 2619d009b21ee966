// Package snapcache remembers the last-observed remote snapshot of each site
// in a Sqlite database,
// so that a plan can be computed without reading the remote side.
package snapcache

import (
	"context"
	"database/sql"
	stderrs "errors"
	"math/big"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/site"
)

// Schema is the SQL that Open executes.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
  site_id TEXT PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);
`

// Cache is a snapshot cache.
type Cache struct {
	db *sql.DB
}

// Open produces a Cache in db,
// creating its table if needed.
func Open(ctx context.Context, db *sql.DB) (*Cache, error) {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, errors.Wrap(err, "creating schema")
	}
	return &Cache{db: db}, nil
}

// OpenFile opens the Sqlite database at conn and produces a Cache in it.
func OpenFile(ctx context.Context, conn string) (*Cache, error) {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", conn)
	}
	db.SetMaxOpenConns(1)
	c, err := Open(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores snap as the latest snapshot of the given site.
func (c *Cache) Put(ctx context.Context, siteID string, snap site.Snapshot) error {
	const q = `INSERT INTO snapshots (site_id, data) VALUES ($1, $2) ON CONFLICT (site_id) DO UPDATE SET data = excluded.data`

	s, err := toStruct(snap)
	if err != nil {
		return errors.Wrapf(err, "encoding snapshot of %s", siteID)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "marshaling snapshot of %s", siteID)
	}
	_, err = c.db.ExecContext(ctx, q, siteID, data)
	return errors.Wrapf(err, "storing snapshot of %s", siteID)
}

// Get retrieves the latest snapshot of the given site.
// It returns sitesync.ErrNotFound if there is none.
func (c *Cache) Get(ctx context.Context, siteID string) (site.Snapshot, error) {
	const q = `SELECT data FROM snapshots WHERE site_id = $1`

	var data []byte
	err := c.db.QueryRowContext(ctx, q, siteID).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return site.Snapshot{}, errors.Wrapf(sitesync.ErrNotFound, "snapshot of %s", siteID)
	}
	if err != nil {
		return site.Snapshot{}, errors.Wrapf(err, "reading snapshot of %s", siteID)
	}

	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return site.Snapshot{}, errors.Wrapf(err, "unmarshaling snapshot of %s", siteID)
	}
	snap, err := fromStruct(&s)
	return snap, errors.Wrapf(err, "decoding snapshot of %s", siteID)
}

// Delete removes the snapshot of the given site, if there is one.
func (c *Cache) Delete(ctx context.Context, siteID string) error {
	const q = `DELETE FROM snapshots WHERE site_id = $1`
	_, err := c.db.ExecContext(ctx, q, siteID)
	return errors.Wrapf(err, "deleting snapshot of %s", siteID)
}

// Sites calls f on the id of each site in the cache, in order.
func (c *Cache) Sites(ctx context.Context, f func(string) error) error {
	const q = `SELECT site_id FROM snapshots ORDER BY site_id`
	return sqlutil.ForQueryRows(ctx, c.db, q, f)
}

// Blob hashes are stored as decimal strings,
// since structpb numbers are float64.

func toStruct(snap site.Snapshot) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"metadata": metadataMap(snap.Metadata),
	}
	if snap.SiteName != nil {
		m["site_name"] = *snap.SiteName
	}

	resources := make([]interface{}, 0, len(snap.Resources))
	for _, r := range snap.Resources {
		hdrs := make([]interface{}, 0, len(r.Headers))
		for _, h := range r.Headers {
			hdrs = append(hdrs, []interface{}{h.Key, h.Value})
		}
		rm := map[string]interface{}{
			"path":    r.Path,
			"blob_id": r.BlobID,
			"headers": hdrs,
		}
		if r.BlobHash != nil {
			rm["blob_hash"] = r.BlobHash.String()
		}
		resources = append(resources, rm)
	}
	m["resources"] = resources

	if snap.Routes != nil {
		routes := make([]interface{}, 0, len(*snap.Routes))
		for _, r := range *snap.Routes {
			routes = append(routes, []interface{}{r.Pattern, r.Dest})
		}
		m["routes"] = routes
	}

	return structpb.NewStruct(m)
}

func metadataMap(md site.Metadata) map[string]interface{} {
	m := make(map[string]interface{})
	for _, f := range md.Fields() {
		m[f.Name] = f.Value
	}
	return m
}

func fromStruct(s *structpb.Struct) (site.Snapshot, error) {
	var snap site.Snapshot
	fields := s.GetFields()

	if v, ok := fields["metadata"]; ok {
		mv := v.GetStructValue()
		if mv == nil {
			return snap, errors.New("metadata is not an object")
		}
		md, err := metadataFromMap(mv.GetFields())
		if err != nil {
			return snap, err
		}
		snap.Metadata = md
	}

	if v, ok := fields["site_name"]; ok {
		name, err := str(v, "site_name")
		if err != nil {
			return snap, err
		}
		snap.SiteName = &name
	}

	for i, rv := range fields["resources"].GetListValue().GetValues() {
		r, err := resourceFromValue(rv)
		if err != nil {
			return snap, errors.Wrapf(err, "resource %d", i)
		}
		snap.Resources = append(snap.Resources, r)
	}

	if v, ok := fields["routes"]; ok {
		routes := site.Routes{}
		for i, pv := range v.GetListValue().GetValues() {
			k, val, err := pair(pv)
			if err != nil {
				return snap, errors.Wrapf(err, "route %d", i)
			}
			routes = append(routes, site.Route{Pattern: k, Dest: val})
		}
		snap.Routes = &routes
	}

	return snap, nil
}

func metadataFromMap(fields map[string]*structpb.Value) (site.Metadata, error) {
	var md site.Metadata
	dst := map[string]**string{
		"name":        &md.Name,
		"description": &md.Description,
		"image_url":   &md.ImageURL,
		"project_url": &md.ProjectURL,
		"creator":     &md.Creator,
		"link":        &md.Link,
	}
	for k, v := range fields {
		p, ok := dst[k]
		if !ok {
			return md, errors.Errorf("unknown metadata field %s", k)
		}
		s, err := str(v, k)
		if err != nil {
			return md, err
		}
		*p = &s
	}
	return md, nil
}

func resourceFromValue(v *structpb.Value) (site.Resource, error) {
	var r site.Resource

	sv := v.GetStructValue()
	if sv == nil {
		return r, errors.New("not an object")
	}
	fields := sv.GetFields()

	var err error
	if r.Path, err = str(fields["path"], "path"); err != nil {
		return r, err
	}
	if bv, ok := fields["blob_id"]; ok {
		if r.BlobID, err = str(bv, "blob_id"); err != nil {
			return r, err
		}
	}
	if hv, ok := fields["blob_hash"]; ok {
		hs, err := str(hv, "blob_hash")
		if err != nil {
			return r, err
		}
		h, ok := new(big.Int).SetString(hs, 10)
		if !ok {
			return r, errors.Errorf("bad blob_hash %q", hs)
		}
		r.BlobHash = h
	}
	for i, hv := range fields["headers"].GetListValue().GetValues() {
		k, val, err := pair(hv)
		if err != nil {
			return r, errors.Wrapf(err, "header %d", i)
		}
		r.Headers = append(r.Headers, site.Header{Key: k, Value: val})
	}
	return r, nil
}

func str(v *structpb.Value, name string) (string, error) {
	if v == nil {
		return "", errors.Errorf("missing %s", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", errors.Errorf("%s is not a string", name)
	}
	return s.StringValue, nil
}

func pair(v *structpb.Value) (string, string, error) {
	vals := v.GetListValue().GetValues()
	if len(vals) != 2 {
		return "", "", errors.Errorf("got %d elements, want 2", len(vals))
	}
	a, err := str(vals[0], "key")
	if err != nil {
		return "", "", err
	}
	b, err := str(vals[1], "value")
	return a, b, err
}
