// Package reconcile turns a site.Diff into an ordered list of commands
// that a gateway can submit as one transaction.
package reconcile

import (
	"github.com/pkg/errors"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/site"
)

// Reconcile produces the commands that apply d to the site with the given handle.
// An empty handle means the site does not exist yet:
// it is created,
// which requires d to update both the metadata and the site name,
// and it is transferred to owner as the final command.
//
// Resource operations are translated in the order d lists them.
// Deletions are idempotent.
// A BurnedSite entry destroys the site;
// Reconcile does not check that nothing follows it.
//
// When d updates the routes they are always cleared first,
// even if a RemovedRoutes entry already cleared them,
// and then rebuilt when the new list is not empty.
//
// On error no commands are returned.
func Reconcile(handle string, d site.Diff, owner string) ([]Command, error) {
	var (
		cmds     []Command
		creating = handle == ""
	)

	if creating {
		if d.Metadata.Op == site.Noop {
			return nil, errors.Wrap(sitesync.ErrMissingRequiredField, "creating a site requires metadata")
		}
		if d.SiteName.Op == site.Noop {
			return nil, errors.Wrap(sitesync.ErrMissingRequiredField, "creating a site requires a name")
		}
		md := d.Metadata.Data
		cmds = append(cmds,
			Command{Kind: NewMetadata, Metadata: &md},
			Command{Kind: NewSite, Name: d.SiteName.Name},
		)
	} else {
		if d.Metadata.Op != site.Noop {
			md := d.Metadata.Data
			cmds = append(cmds,
				Command{Kind: NewMetadata, Metadata: &md},
				Command{Kind: UpdateMetadata, Site: handle},
			)
		}
		if d.SiteName.Op != site.Noop {
			cmds = append(cmds, Command{Kind: UpdateName, Site: handle, Name: d.SiteName.Name})
		}
	}

	for _, op := range d.Resources {
		switch op.Kind {
		case site.Unchanged:

		case site.Deleted:
			cmds = append(cmds, Command{Kind: RemoveResourceIfExists, Site: handle, Path: op.Path})

		case site.Created:
			r := op.Resource
			cmds = append(cmds,
				Command{Kind: NewRangeOption, Path: r.Path},
				Command{Kind: NewResource, Path: r.Path, BlobHash: r.BlobHash, BlobID: r.BlobID},
			)
			for _, h := range r.Headers {
				cmds = append(cmds, Command{Kind: AddHeader, Path: r.Path, Key: h.Key, Value: h.Value})
			}
			cmds = append(cmds, Command{Kind: AddResource, Site: handle, Path: r.Path})

		case site.RemovedRoutes:
			cmds = append(cmds, Command{Kind: ClearRoutes, Site: handle})

		case site.BurnedSite:
			cmds = append(cmds, Command{Kind: BurnSite, Site: handle})

		default:
			return nil, errors.Wrapf(sitesync.ErrUnhandledResourceOp, "%s", op.Kind)
		}
	}

	if d.Routes.Op != site.Noop {
		cmds = append(cmds, Command{Kind: ClearRoutes, Site: handle})
		if len(d.Routes.Routes) > 0 {
			cmds = append(cmds, Command{Kind: CreateRoutes, Site: handle})
			for _, r := range d.Routes.Routes {
				cmds = append(cmds, Command{Kind: InsertRoute, Site: handle, Key: r.Pattern, Path: r.Dest})
			}
		}
	}

	if creating {
		cmds = append(cmds, Command{Kind: TransferSite, Owner: owner})
	}

	return cmds, nil
}
