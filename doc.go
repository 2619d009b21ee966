// Package sitesync keeps a local workspace of files
// in agreement with a site published on a remote object ledger.
//
// A site is a set of resources
// (files, each with its content hash and a list of HTTP headers),
// an optional list of routes,
// a name,
// and some descriptive metadata.
// Once published,
// a site changes only by way of explicit mutation commands
// submitted to the ledger.
//
// The local side is a workspace
// (see the workspace subpackage):
// a tree of files on some durable backend,
// which tells interested observers about every write and delete.
// Each file is identified by its content hash,
// a sha2-256 digest computed by Hash.
// The remote side decodes that digest as a little-endian 256-bit integer,
// so DigestToInt does the same.
//
// Keeping the two in sync is a three-step affair.
// First, take a snapshot of each side
// (site.LocalSnapshot and chain.FetchSnapshot).
// Second, compare them with site.ComputeDiff,
// which says which resources are unchanged, created, or deleted,
// and whether the name, metadata, or routes need updating.
// Third, hand the diff to reconcile.Reconcile,
// which turns it into an ordered list of commands.
// Submitting those commands is the job of the ledger gateway,
// which is outside this module.
//
// Published sites are served by a portal
// under a subdomain derived from the site's object id
// (ObjectIDToURL)
// or from its name-service domain
// (DomainToURL).
package sitesync
