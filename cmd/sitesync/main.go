// Command sitesync manages a site workspace
// and plans the transactions that publish it.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"

	_ "github.com/bobg/sitesync/store/compress"
	_ "github.com/bobg/sitesync/store/file"
	_ "github.com/bobg/sitesync/store/gcs"
	_ "github.com/bobg/sitesync/store/logging"
	_ "github.com/bobg/sitesync/store/lru"
	_ "github.com/bobg/sitesync/store/mem"
	_ "github.com/bobg/sitesync/store/pg"
	_ "github.com/bobg/sitesync/store/replica"
	_ "github.com/bobg/sitesync/store/sqlite3"
	"github.com/bobg/sitesync/workspace"
)

type maincmd struct {
	conf *config
	ws   *workspace.Workspace
}

func main() {
	configFile := flag.String("config", "sitesync.json", "path to config file")
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Config value not set")
	}

	ctx := context.Background()

	conf, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	ws, err := conf.workspace(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if err = ws.Mount(ctx); err != nil {
		log.Fatalf("Mounting workspace %s: %s", ws.Root(), err)
	}

	err = subcmd.Run(ctx, maincmd{conf: conf, ws: ws}, flag.Args())
	if uerr := ws.Unmount(); uerr != nil && err == nil {
		err = uerr
	}
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"clear":    fsCmd("clear", c.clear),
		"get":      fsCmd("get", c.get),
		"hash":     fsCmd("hash", c.hash),
		"import":   fsCmd("import", c.importArchive),
		"ingest":   fsCmd("ingest", c.ingest),
		"ls":       fsCmd("ls", c.ls),
		"plan":     fsCmd("plan", c.plan),
		"put":      fsCmd("put", c.put),
		"remember": fsCmd("remember", c.remember),
		"rm":       fsCmd("rm", c.rm),
		"sync":     fsCmd("sync", c.sync),
		"url":      fsCmd("url", c.url),
	}
}

// fsCmd adapts a subcommand that parses its own flags
// to the subcmd.Subcmd form expected by github.com/bobg/subcmd.
func fsCmd(name string, f func(context.Context, *flag.FlagSet, []string) error) subcmd.Subcmd {
	return subcmd.Subcmd{
		F: func(ctx context.Context, args []string) error {
			return f(ctx, flag.NewFlagSet(name, flag.ContinueOnError), args)
		},
	}
}
