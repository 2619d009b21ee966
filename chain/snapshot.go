package chain

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync/site"
)

// FetchSnapshot reads the site with the given id into a site.Snapshot.
// Resources come from the site's resource fields,
// and routes from its routes field.
// A site with no routes field has nil Routes.
func FetchSnapshot(ctx context.Context, gw Gateway, siteID string) (site.Snapshot, error) {
	var snap site.Snapshot

	obj, err := gw.GetObject(ctx, siteID)
	if err != nil {
		return snap, errors.Wrapf(err, "getting site %s", siteID)
	}
	if err := expectType(obj, SiteType); err != nil {
		return snap, err
	}
	var sc SiteContent
	if err := decodeStrict(obj.ID, obj.Content, &sc); err != nil {
		return snap, err
	}
	snap.Metadata = sc.Metadata
	snap.SiteName = sc.Name

	err = EachChild(ctx, gw, siteID, func(child Object) error {
		if err := expectType(child, DynamicFieldType); err != nil {
			return err
		}
		var fc FieldContent
		if err := decodeStrict(child.ID, child.Content, &fc); err != nil {
			return err
		}
		if fc.Name.Type != ResourcePathName {
			return nil
		}
		res, err := decodeResource(child.ID, fc.Value)
		if err != nil {
			return err
		}
		snap.Resources = append(snap.Resources, res)
		return nil
	})
	if err != nil {
		return snap, errors.Wrapf(err, "listing resources of %s", siteID)
	}

	routes, err := fetchRoutes(ctx, gw, siteID)
	if err != nil {
		return snap, err
	}
	snap.Routes = routes

	return snap, nil
}

func decodeResource(objID string, data []byte) (site.Resource, error) {
	var rv ResourceValue
	if err := decodeStrict(objID, data, &rv); err != nil {
		return site.Resource{}, err
	}
	h, ok := new(big.Int).SetString(rv.BlobHash, 10)
	if !ok || h.Sign() < 0 {
		return site.Resource{}, &SchemaError{Object: objID, Field: "blob_hash", Reason: "not a nonnegative decimal integer"}
	}
	return site.Resource{
		Path:     rv.Path,
		BlobHash: h,
		BlobID:   rv.BlobID,
		Headers:  rv.Headers,
	}, nil
}

// routesHandler treats a missing routes field as a site with no routes.
type routesHandler struct{}

func (routesHandler) Deleted(e *Deleted) error                       { return e }
func (routesHandler) NotExists(*NotExists) error                     { return nil }
func (routesHandler) DisplayError(e *DisplayError) error             { return e }
func (routesHandler) DynamicFieldMissing(*DynamicFieldMissing) error { return nil }
func (routesHandler) Unknown(e *Unknown) error                       { return e }

func fetchRoutes(ctx context.Context, gw Gateway, siteID string) (*site.Routes, error) {
	id, err := RoutesFieldID(siteID)
	if err != nil {
		return nil, err
	}
	obj, err := gw.GetObject(ctx, id)
	if err != nil {
		if err = Handle(err, routesHandler{}); err != nil {
			return nil, errors.Wrapf(err, "getting routes of %s", siteID)
		}
		return nil, nil
	}
	if err := expectType(obj, DynamicFieldType); err != nil {
		return nil, err
	}
	var fc FieldContent
	if err := decodeStrict(obj.ID, obj.Content, &fc); err != nil {
		return nil, err
	}
	if fc.Name.Type != VectorU8Name || fc.Name.Value != RoutesKey {
		return nil, &SchemaError{Object: obj.ID, Field: "name", Reason: "not the routes field"}
	}
	var rv RoutesValue
	if err := decodeStrict(obj.ID, fc.Value, &rv); err != nil {
		return nil, err
	}
	routes := site.Routes(rv.RouteList)
	return &routes, nil
}
