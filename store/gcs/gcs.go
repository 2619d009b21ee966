// Package gcs implements a storage backend on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
)

var _ store.Backend = &Backend{}

// Backend is a Google Cloud Storage-based implementation of store.Backend.
// Each file is an object whose name is the file's path
// (without its leading slash)
// appended to a fixed prefix.
type Backend struct {
	bucket *storage.BucketHandle
	prefix string
}

// New produces a new Backend.
// The prefix may be empty,
// in which case the workspace occupies the whole bucket.
func New(bucket *storage.BucketHandle, prefix string) *Backend {
	return &Backend{bucket: bucket, prefix: prefix}
}

func (b *Backend) objName(path string) string {
	return b.prefix + strings.TrimPrefix(path, "/")
}

func (b *Backend) pathFromObjName(name string) (string, bool) {
	if !strings.HasPrefix(name, b.prefix) {
		return "", false
	}
	return "/" + name[len(b.prefix):], true
}

// Init implements store.Backend.
// It checks that the bucket is reachable.
func (b *Backend) Init(ctx context.Context) error {
	_, err := b.bucket.Attrs(ctx)
	return errors.Wrap(err, "getting bucket attrs")
}

// Write implements store.Backend.
func (b *Backend) Write(ctx context.Context, path string, content []byte) error {
	var (
		name = b.objName(path)
		w    = b.bucket.Object(name).NewWriter(ctx)
	)
	if _, err := w.Write(content); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", name)
	}

	// The object is not committed until Close returns successfully.
	return errors.Wrapf(w.Close(), "closing object %s", name)
}

// Read implements store.Backend.
func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	name := b.objName(path)
	r, err := b.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, sitesync.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening object %s", name)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	return content, errors.Wrapf(err, "reading contents of object %s", name)
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, path string) error {
	name := b.objName(path)
	err := b.bucket.Object(name).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return sitesync.ErrNotFound
	}
	return errors.Wrapf(err, "deleting object %s", name)
}

// List implements store.Backend.
// Paths are produced in the bucket's lexicographic object-name order.
func (b *Backend) List(ctx context.Context, prefix string, f func(string) error) error {
	iter := b.bucket.Objects(ctx, &storage.Query{Prefix: b.objName(prefix)})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over objects")
		}
		path, ok := b.pathFromObjName(attrs.Name)
		if !ok {
			continue
		}
		if err = f(path); err != nil {
			return err
		}
	}
}

// Clear implements store.Backend.
// Objects are deleted one at a time;
// an error part way through leaves the rest in place.
func (b *Backend) Clear(ctx context.Context, prefix string) error {
	var paths []string
	err := b.List(ctx, prefix, func(path string) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := b.Delete(ctx, path); err != nil && !stderrs.Is(err, sitesync.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Close implements store.Backend.
// The storage client is owned by whoever created the bucket handle.
func (b *Backend) Close() error {
	return nil
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (store.Backend, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		prefix, _ := conf["prefix"].(string)
		options = append(options, option.WithCredentialsFile(creds))
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName), prefix), nil
	})
}
