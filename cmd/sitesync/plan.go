package main

import (
	"context"
	"encoding/json"
	stderrs "errors"
	"flag"
	"log"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/reconcile"
	"github.com/bobg/sitesync/site"
	"github.com/bobg/sitesync/snapcache"
)

func (c maincmd) plan(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		siteID     = fs.String("site", "", "id of the published site (default: object_id from the site config; none means create)")
		remoteFile = fs.String("remote", "", "JSON file holding the remote snapshot (default: the snapshot cache)")
		owner      = fs.String("owner", "", "owner of a newly created site")
		teardown   = fs.Bool("teardown", false, "plan the destruction of the site")
		asJSON     = fs.Bool("json", false, "print commands as JSON")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	cfg, err := c.siteConfig(ctx)
	if err != nil {
		return err
	}
	if *siteID == "" && cfg != nil {
		*siteID = cfg.ObjectID
	}
	if *siteID == "" && *teardown {
		return errors.New("teardown requires a site")
	}
	if *siteID == "" && *owner == "" {
		return errors.New("creating a site requires -owner")
	}

	var local, remote site.Snapshot

	g, gctx := errgroup.WithContext(ctx)
	if !*teardown {
		g.Go(func() error {
			assets, err := c.ws.Assets(gctx)
			if err != nil {
				return errors.Wrap(err, "reading workspace")
			}
			local, err = site.LocalSnapshot(assets, cfg)
			return err
		})
	}
	if *siteID != "" || *remoteFile != "" {
		g.Go(func() error {
			var err error
			remote, err = c.loadRemote(gctx, *siteID, *remoteFile)
			return err
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	var d site.Diff
	if *teardown {
		d, err = site.TeardownDiff(remote)
	} else {
		d, err = site.ComputeDiff(local, remote)
	}
	if err != nil {
		return errors.Wrap(err, "computing diff")
	}
	if *siteID != "" && !d.HasChanges() {
		log.Print("site is up to date")
		return nil
	}

	cmds, err := reconcile.Reconcile(*siteID, d, *owner)
	if err != nil {
		return errors.Wrap(err, "reconciling")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(cmds), "encoding commands")
	}
	return reconcile.Plan(os.Stdout, cmds)
}

// siteConfig reads the workspace's site config.
// It returns nil if there is none.
func (c maincmd) siteConfig(ctx context.Context) (*site.Config, error) {
	data, err := c.ws.ReadFile(ctx, site.ConfigPath)
	if stderrs.Is(err, sitesync.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg, err := site.ParseConfig(data)
	return cfg, errors.Wrapf(err, "parsing %s", site.ConfigPath)
}

func (c maincmd) loadRemote(ctx context.Context, siteID, filename string) (site.Snapshot, error) {
	if filename != "" {
		return readSnapshot(filename)
	}

	cache, err := c.openCache(ctx)
	if err != nil {
		return site.Snapshot{}, err
	}
	defer cache.Close()

	snap, err := cache.Get(ctx, siteID)
	if stderrs.Is(err, sitesync.ErrNotFound) {
		return snap, errors.Wrapf(err, "no cached snapshot of %s (use remember or -remote)", siteID)
	}
	return snap, err
}

func (c maincmd) openCache(ctx context.Context) (*snapcache.Cache, error) {
	if c.conf.Cache == "" {
		return nil, errors.New("no snapshot cache configured")
	}
	return snapcache.OpenFile(ctx, c.conf.Cache)
}

func readSnapshot(filename string) (site.Snapshot, error) {
	var snap site.Snapshot

	f, err := os.Open(filename)
	if err != nil {
		return snap, errors.Wrapf(err, "opening %s", filename)
	}
	defer f.Close()

	err = json.NewDecoder(f).Decode(&snap)
	return snap, errors.Wrapf(err, "decoding %s", filename)
}

func (c maincmd) remember(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		siteID = fs.String("site", "", "id of the site")
		forget = fs.Bool("forget", false, "remove the cached snapshot instead")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *siteID == "" {
		return errors.New("missing -site")
	}

	cache, err := c.openCache(ctx)
	if err != nil {
		return err
	}
	defer cache.Close()

	if *forget {
		return cache.Delete(ctx, *siteID)
	}

	if fs.NArg() != 1 {
		return errors.New("usage: remember -site ID SNAPSHOT.json")
	}
	snap, err := readSnapshot(fs.Arg(0))
	if err != nil {
		return err
	}
	if err = cache.Put(ctx, *siteID, snap); err != nil {
		return err
	}
	log.Printf("remembered %s: %d resources", *siteID, len(snap.Resources))
	return nil
}
