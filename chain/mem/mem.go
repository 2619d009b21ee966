// Package mem implements an in-memory chain.Gateway.
// Submitted commands are applied to an in-memory model of the sites they touch,
// so a sequence of reconciliations can be exercised without a network.
package mem

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync/chain"
	"github.com/bobg/sitesync/reconcile"
	"github.com/bobg/sitesync/site"
)

// DefaultPageSize is the page size of a Gateway whose PageSize is zero.
const DefaultPageSize = 50

// DefaultPackage is the site package address of a Gateway whose Package is empty.
const DefaultPackage = "0x5175"

// Gateway is an in-memory chain.Gateway.
type Gateway struct {
	// PageSize limits the number of objects per page from ListChildObjects.
	PageSize int

	// Package is the address of the site package,
	// which determines the ids of resource fields.
	Package string

	mu        sync.Mutex
	sites     map[string]*siteState
	deleted   map[string]bool
	failures  map[string]chain.RemoteReadError
	submitted [][]reconcile.Command
	nonce     uint64
}

var _ chain.Gateway = (*Gateway)(nil)

type siteState struct {
	name      string
	metadata  site.Metadata
	resources map[string]site.Resource
	routes    *site.Routes
	owner     string
}

// New produces a new, empty Gateway.
func New() *Gateway {
	return &Gateway{
		sites:    make(map[string]*siteState),
		deleted:  make(map[string]bool),
		failures: make(map[string]chain.RemoteReadError),
	}
}

// canonical is the canonical form of id,
// so that "0x1" and "0x00...01" name the same object.
// Ids that do not parse are returned unchanged
// and so match nothing.
func canonical(id string) string {
	p, err := chain.ParseID(id)
	if err != nil {
		return id
	}
	return chain.FormatID(p)
}

func (g *Gateway) pkg() string {
	if g.Package == "" {
		return DefaultPackage
	}
	return g.Package
}

// PutSite stores snap as the site with the given id,
// replacing any site already there.
// A nil SiteName in snap is stored as the empty name.
func (g *Gateway) PutSite(id string, snap site.Snapshot) error {
	p, err := chain.ParseID(id)
	if err != nil {
		return err
	}
	id = chain.FormatID(p)

	s := &siteState{
		metadata:  snap.Metadata,
		resources: make(map[string]site.Resource),
	}
	if snap.SiteName != nil {
		s.name = *snap.SiteName
	}
	for _, r := range snap.Resources {
		s.resources[r.Path] = r
	}
	if snap.Routes != nil {
		routes := append(site.Routes{}, (*snap.Routes)...)
		s.routes = &routes
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sites[id] = s
	delete(g.deleted, id)
	return nil
}

// Fail makes GetObject on id fail with err.
func (g *Gateway) Fail(id string, err chain.RemoteReadError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[canonical(id)] = err
}

// Owner is the owner of the site with the given id,
// empty if it has never been transferred.
func (g *Gateway) Owner(id string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sites[canonical(id)]; ok {
		return s.owner
	}
	return ""
}

// Submitted returns the transactions successfully submitted so far.
func (g *Gateway) Submitted() [][]reconcile.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]reconcile.Command(nil), g.submitted...)
}

// SiteIDs lists the ids of the live sites, sorted.
func (g *Gateway) SiteIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for id := range g.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetObject implements chain.Gateway.GetObject.
func (g *Gateway) GetObject(_ context.Context, id string) (chain.Object, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := canonical(id)
	if err, ok := g.failures[key]; ok {
		return chain.Object{}, err
	}
	if g.deleted[key] {
		return chain.Object{}, &chain.Deleted{ID: id}
	}
	if s, ok := g.sites[key]; ok {
		return siteObject(key, s)
	}
	for siteID, s := range g.sites {
		objs, err := g.fieldObjects(siteID, s)
		if err != nil {
			return chain.Object{}, err
		}
		for _, obj := range objs {
			if obj.ID == key {
				return obj, nil
			}
		}
	}
	return chain.Object{}, &chain.NotExists{ID: id}
}

// ListChildObjects implements chain.Gateway.ListChildObjects.
// The cursor is the decimal offset of the next object.
func (g *Gateway) ListChildObjects(_ context.Context, parent, cursor string) (chain.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := canonical(parent)
	s, ok := g.sites[key]
	if !ok {
		if g.deleted[key] {
			return chain.Page{}, &chain.Deleted{ID: parent}
		}
		return chain.Page{}, &chain.NotExists{ID: parent}
	}

	objs, err := g.fieldObjects(key, s)
	if err != nil {
		return chain.Page{}, err
	}

	var start int
	if cursor != "" {
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 || start > len(objs) {
			return chain.Page{}, errors.Errorf("bad cursor %q", cursor)
		}
	}

	size := g.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	end := start + size
	if end > len(objs) {
		end = len(objs)
	}

	page := chain.Page{Objects: objs[start:end]}
	if end < len(objs) {
		page.HasNextPage = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func siteObject(id string, s *siteState) (chain.Object, error) {
	name := s.name
	content, err := json.Marshal(chain.SiteContent{Name: &name, Metadata: s.metadata})
	if err != nil {
		return chain.Object{}, errors.Wrap(err, "encoding site")
	}
	return chain.Object{ID: id, Type: chain.SiteType, Content: content}, nil
}

// fieldObjects renders the dynamic fields of a site:
// its resources sorted by path,
// followed by its routes if it has any.
func (g *Gateway) fieldObjects(siteID string, s *siteState) ([]chain.Object, error) {
	paths := make([]string, 0, len(s.resources))
	for p := range s.resources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var objs []chain.Object
	for _, p := range paths {
		r := s.resources[p]
		id, err := chain.ResourceFieldID(siteID, g.pkg(), p)
		if err != nil {
			return nil, err
		}
		var hash string
		if r.BlobHash != nil {
			hash = r.BlobHash.String()
		}
		obj, err := fieldObject(id, chain.ResourcePathName, p, chain.ResourceValue{
			Path:     p,
			BlobID:   r.BlobID,
			BlobHash: hash,
			Headers:  r.Headers,
		})
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}

	if s.routes != nil {
		id, err := chain.RoutesFieldID(siteID)
		if err != nil {
			return nil, err
		}
		obj, err := fieldObject(id, chain.VectorU8Name, chain.RoutesKey, chain.RoutesValue{
			RouteList: append([]site.Route{}, (*s.routes)...),
		})
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}

	return objs, nil
}

func fieldObject(id, nameType, nameValue string, value interface{}) (chain.Object, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return chain.Object{}, errors.Wrapf(err, "encoding field %s", id)
	}
	content, err := json.Marshal(chain.FieldContent{
		Name:  chain.FieldName{Type: nameType, Value: nameValue},
		Value: v,
	})
	if err != nil {
		return chain.Object{}, errors.Wrapf(err, "encoding field %s", id)
	}
	return chain.Object{ID: id, Type: chain.DynamicFieldType, Content: content}, nil
}

// Submit implements chain.Gateway.Submit.
// The commands are applied to a copy of the gateway's state,
// which replaces the original only if every command succeeds.
func (g *Gateway) Submit(_ context.Context, cmds []reconcile.Command) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nonce++
	tx := &txn{
		sites:   make(map[string]*siteState, len(g.sites)),
		deleted: make(map[string]bool, len(g.deleted)),
		nonce:   g.nonce,
	}
	for id, s := range g.sites {
		tx.sites[id] = s.clone()
	}
	for id := range g.deleted {
		tx.deleted[id] = true
	}

	for i, cmd := range cmds {
		if err := tx.apply(cmd); err != nil {
			return "", errors.Wrapf(err, "command %d (%s)", i+1, cmd.Kind)
		}
	}
	if tx.pendingResource != nil {
		return "", errors.Errorf("resource %s never added to a site", tx.pendingResource.Path)
	}

	g.sites = tx.sites
	g.deleted = tx.deleted
	g.submitted = append(g.submitted, append([]reconcile.Command(nil), cmds...))

	return digest(g.nonce, cmds)
}

func digest(nonce uint64, cmds []reconcile.Command) (string, error) {
	enc, err := json.Marshal(cmds)
	if err != nil {
		return "", errors.Wrap(err, "encoding transaction")
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h := sha256.New()
	h.Write(buf[:])
	h.Write(enc)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return chain.FormatID(out), nil
}

func (s *siteState) clone() *siteState {
	out := *s
	out.resources = make(map[string]site.Resource, len(s.resources))
	for p, r := range s.resources {
		out.resources[p] = r
	}
	if s.routes != nil {
		routes := append(site.Routes{}, (*s.routes)...)
		out.routes = &routes
	}
	return &out
}

type txn struct {
	sites   map[string]*siteState
	deleted map[string]bool
	nonce   uint64

	pendingMetadata *site.Metadata
	pendingResource *site.Resource
	created         string
}

func (tx *txn) site(handle string) (string, *siteState, error) {
	id := canonical(handle)
	if handle == "" {
		id = tx.created
		if id == "" {
			return "", nil, errors.New("no site created in this transaction")
		}
	}
	if tx.deleted[id] {
		return "", nil, &chain.Deleted{ID: id}
	}
	s, ok := tx.sites[id]
	if !ok {
		return "", nil, &chain.NotExists{ID: id}
	}
	return id, s, nil
}

func (tx *txn) apply(cmd reconcile.Command) error {
	switch cmd.Kind {
	case reconcile.NewMetadata:
		if cmd.Metadata == nil {
			return errors.New("no metadata")
		}
		md := *cmd.Metadata
		tx.pendingMetadata = &md
		return nil

	case reconcile.NewSite:
		if tx.created != "" {
			return errors.New("site already created in this transaction")
		}
		if tx.pendingMetadata == nil {
			return errors.New("no metadata object")
		}
		id := tx.newID()
		tx.sites[id] = &siteState{
			name:      cmd.Name,
			metadata:  *tx.pendingMetadata,
			resources: make(map[string]site.Resource),
		}
		tx.pendingMetadata = nil
		tx.created = id
		return nil

	case reconcile.NewRangeOption:
		return nil

	case reconcile.NewResource:
		if tx.pendingResource != nil {
			return errors.Errorf("resource %s not yet added", tx.pendingResource.Path)
		}
		tx.pendingResource = &site.Resource{Path: cmd.Path, BlobHash: cmd.BlobHash, BlobID: cmd.BlobID}
		return nil

	case reconcile.AddHeader:
		if tx.pendingResource == nil || tx.pendingResource.Path != cmd.Path {
			return errors.Errorf("no pending resource %s", cmd.Path)
		}
		tx.pendingResource.Headers = append(tx.pendingResource.Headers, site.Header{Key: cmd.Key, Value: cmd.Value})
		return nil
	}

	id, s, err := tx.site(cmd.Site)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case reconcile.TransferSite:
		s.owner = cmd.Owner

	case reconcile.UpdateMetadata:
		if tx.pendingMetadata == nil {
			return errors.New("no metadata object")
		}
		mergeMetadata(&s.metadata, *tx.pendingMetadata)
		tx.pendingMetadata = nil

	case reconcile.UpdateName:
		s.name = cmd.Name

	case reconcile.RemoveResourceIfExists:
		delete(s.resources, cmd.Path)

	case reconcile.AddResource:
		if tx.pendingResource == nil || tx.pendingResource.Path != cmd.Path {
			return errors.Errorf("no pending resource %s", cmd.Path)
		}
		if _, ok := s.resources[cmd.Path]; ok {
			return errors.Errorf("resource %s already exists", cmd.Path)
		}
		s.resources[cmd.Path] = *tx.pendingResource
		tx.pendingResource = nil

	case reconcile.ClearRoutes:
		s.routes = nil

	case reconcile.CreateRoutes:
		if s.routes != nil {
			return errors.New("routes already exist")
		}
		s.routes = &site.Routes{}

	case reconcile.InsertRoute:
		if s.routes == nil {
			return errors.New("no routes")
		}
		for _, r := range *s.routes {
			if r.Pattern == cmd.Key {
				return errors.Errorf("duplicate route %s", cmd.Key)
			}
		}
		*s.routes = append(*s.routes, site.Route{Pattern: cmd.Key, Dest: cmd.Path})

	case reconcile.BurnSite:
		if len(s.resources) > 0 {
			return errors.Errorf("site still has %d resources", len(s.resources))
		}
		delete(tx.sites, id)
		tx.deleted[id] = true

	default:
		return errors.Errorf("unknown command kind %s", cmd.Kind)
	}

	return nil
}

func (tx *txn) newID() string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], tx.nonce)
	binary.BigEndian.PutUint64(buf[8:], uint64(len(tx.sites)+len(tx.deleted)))
	id := sha256.Sum256(buf[:])
	return chain.FormatID(id)
}

func mergeMetadata(dst *site.Metadata, src site.Metadata) {
	set := func(d **string, s *string) {
		if s != nil {
			v := *s
			*d = &v
		}
	}
	set(&dst.Name, src.Name)
	set(&dst.Description, src.Description)
	set(&dst.ImageURL, src.ImageURL)
	set(&dst.ProjectURL, src.ProjectURL)
	set(&dst.Creator, src.Creator)
	set(&dst.Link, src.Link)
}
