// Package logging implements a storage backend that delegates everything to a nested backend,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/bobg/sitesync/store"
)

var _ store.Backend = &Backend{}

type Backend struct {
	b store.Backend
}

func New(b store.Backend) *Backend {
	return &Backend{b: b}
}

func (b *Backend) Init(ctx context.Context) error {
	err := b.b.Init(ctx)
	if err != nil {
		log.Printf("ERROR in Init: %s", err)
	} else {
		log.Print("Init")
	}
	return err
}

func (b *Backend) Write(ctx context.Context, path string, content []byte) error {
	err := b.b.Write(ctx, path, content)
	if err != nil {
		log.Printf("ERROR in Write %s: %s", path, err)
	} else {
		log.Printf("Write %s, %d bytes", path, len(content))
	}
	return err
}

func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	content, err := b.b.Read(ctx, path)
	if err != nil {
		log.Printf("ERROR in Read %s: %s", path, err)
	} else {
		log.Printf("Read %s, %d bytes", path, len(content))
	}
	return content, err
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	err := b.b.Delete(ctx, path)
	if err != nil {
		log.Printf("ERROR in Delete %s: %s", path, err)
	} else {
		log.Printf("Delete %s", path)
	}
	return err
}

func (b *Backend) List(ctx context.Context, prefix string, f func(string) error) error {
	log.Printf("List, prefix=%s", prefix)
	return b.b.List(ctx, prefix, func(path string) error {
		err := f(path)
		if err != nil {
			log.Printf("  ERROR in List: %s: %s", path, err)
		} else {
			log.Printf("  List: %s", path)
		}
		return err
	})
}

func (b *Backend) Clear(ctx context.Context, prefix string) error {
	err := b.b.Clear(ctx, prefix)
	if err != nil {
		log.Printf("ERROR in Clear %s: %s", prefix, err)
	} else {
		log.Printf("Clear %s", prefix)
	}
	return err
}

func (b *Backend) Close() error {
	err := b.b.Close()
	if err != nil {
		log.Printf("ERROR in Close: %s", err)
	} else {
		log.Print("Close")
	}
	return err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (store.Backend, error) {
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested), nil
	})
}
