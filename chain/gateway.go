// Package chain describes the remote side of a site:
// a graph of objects reached through a Gateway,
// and how a site.Snapshot is read out of it.
package chain

import (
	"context"
	"encoding/json"

	"github.com/bobg/sitesync/reconcile"
)

// Object is the structured content of one remote object.
type Object struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Page is one page of a paginated listing.
type Page struct {
	Objects     []Object
	NextCursor  string
	HasNextPage bool
}

// Gateway is request/response access to the remote object graph.
type Gateway interface {
	// ListChildObjects returns one page of the dynamic fields of parent.
	// The empty cursor requests the first page.
	// Cursors are opaque
	// and are only meaningful when passed back to the same Gateway.
	ListChildObjects(ctx context.Context, parent, cursor string) (Page, error)

	// GetObject returns the object with the given id.
	// Failure to read it is reported as a RemoteReadError.
	GetObject(ctx context.Context, id string) (Object, error)

	// Submit executes cmds as a single all-or-nothing transaction
	// and returns its digest.
	Submit(ctx context.Context, cmds []reconcile.Command) (string, error)
}

// EachChild calls f on every child object of parent,
// fetching pages until there are no more.
// There is no bound on the number of pages.
func EachChild(ctx context.Context, gw Gateway, parent string, f func(Object) error) error {
	var cursor string
	for {
		page, err := gw.ListChildObjects(ctx, parent, cursor)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			if err := f(obj); err != nil {
				return err
			}
		}
		if !page.HasNextPage {
			return nil
		}
		cursor = page.NextCursor
	}
}
