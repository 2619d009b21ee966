package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
)

func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	from := fs.String("from", "", "file to read (default: stdin)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: put [-from FILE] PATH")
	}
	p := fs.Arg(0)

	var content []byte
	if *from == "" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(*from)
	}
	if err != nil {
		return errors.Wrap(err, "reading input")
	}

	if err = c.ws.WriteFile(ctx, p, content); err != nil {
		return err
	}
	log.Printf("stored %s (%d bytes)", p, len(content))
	return nil
}

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: get PATH")
	}

	content, err := c.ws.ReadFile(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(content)
	return errors.Wrap(err, "writing to stdout")
}

func (c maincmd) rm(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	for _, p := range fs.Args() {
		if err = c.ws.DeleteFile(ctx, p); err != nil {
			return err
		}
		log.Printf("removed %s", p)
	}
	return nil
}

func (c maincmd) ls(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	paths, err := c.ws.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func (c maincmd) clear(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	return c.ws.Clear(ctx)
}

func (c maincmd) importArchive(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: import ZIPFILE")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return errors.Wrapf(err, "reading %s", fs.Arg(0))
	}
	n, err := c.ws.ImportArchive(ctx, data)
	if err != nil {
		return errors.Wrapf(err, "importing %s (%d files imported)", fs.Arg(0), n)
	}
	log.Printf("imported %d files", n)
	return nil
}
