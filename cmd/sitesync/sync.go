package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync/dsync"
)

func (c maincmd) ingest(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ingest DIR")
	}

	tree := &dsync.Tree{WS: c.ws, Root: fs.Arg(0)}
	written, removed, err := tree.Ingest(ctx)
	if err != nil {
		return err
	}
	log.Printf("ingested %s: %d written, %d removed", fs.Arg(0), written, removed)
	return nil
}

func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: sync DIR")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	tree := &dsync.Tree{WS: c.ws, Root: fs.Arg(0)}
	return tree.Run(ctx)
}
