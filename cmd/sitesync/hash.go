package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync"
)

func (c maincmd) hash(ctx context.Context, fs *flag.FlagSet, args []string) error {
	fromWorkspace := fs.Bool("ws", false, "hash workspace files instead of local files")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	if fs.NArg() == 0 {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "reading stdin")
		}
		return printHash("-", content)
	}

	for _, name := range fs.Args() {
		var content []byte
		if *fromWorkspace {
			content, err = c.ws.ReadFile(ctx, name)
		} else {
			content, err = os.ReadFile(name)
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", name)
		}
		if err = printHash(name, content); err != nil {
			return err
		}
	}
	return nil
}

func printHash(name string, content []byte) error {
	ref, err := sitesync.Hash(content)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n", ref, ref.Int(), name)
	return nil
}

func (c maincmd) url(_ context.Context, fs *flag.FlagSet, args []string) error {
	var (
		domain = fs.Bool("domain", false, "arguments are domain names, not object ids")
		portal = fs.String("portal", c.conf.Portal, "portal domain")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *portal == "" {
		return errors.New("no portal configured")
	}

	for _, arg := range fs.Args() {
		if *domain {
			fmt.Println(sitesync.DomainToURL(arg, *portal, c.conf.HTTPS))
			continue
		}
		u, err := sitesync.ObjectIDToURL(arg, *portal, c.conf.HTTPS)
		if err != nil {
			return errors.Wrapf(err, "converting %s", arg)
		}
		fmt.Println(u)
	}
	return nil
}
