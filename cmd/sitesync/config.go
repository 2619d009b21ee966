package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync/store"
	"github.com/bobg/sitesync/workspace"
)

// config is the contents of the sitesync config file:
//
//	{
//	  "store":  {"type": "file", "root": "/var/sites"},
//	  "root":   "/mysite",
//	  "mount":  "",
//	  "portal": "example.site",
//	  "https":  true,
//	  "cache":  "snapshots.db"
//	}
//
// The "store" object is passed to the backend registry.
type config struct {
	Store  map[string]interface{} `json:"store"`
	Root   string                 `json:"root"`
	Mount  string                 `json:"mount"`
	Portal string                 `json:"portal"`
	HTTPS  bool                   `json:"https"`
	Cache  string                 `json:"cache"`
}

func loadConfig(filename string) (*config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	var conf config
	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err = dec.Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	if conf.Store == nil {
		return nil, fmt.Errorf("config file %s missing `store` parameter", filename)
	}
	if conf.Root == "" {
		conf.Root = "/"
	}
	return &conf, nil
}

func (c *config) workspace(ctx context.Context) (*workspace.Workspace, error) {
	typ, ok := c.Store["type"].(string)
	if !ok {
		return nil, errors.New("store config missing `type` parameter")
	}
	b, err := store.Create(ctx, typ, c.Store)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s-type store", typ)
	}
	return workspace.New(b, c.Root, c.Mount, nil)
}
