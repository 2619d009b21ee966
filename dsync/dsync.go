// Package dsync keeps a workspace in step with a directory tree on the local filesystem.
package dsync

import (
	"bytes"
	"context"
	stderrs "errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rjeczalik/notify"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/workspace"
)

// Tree mirrors the files under Root into WS.
// Only regular files are copied.
// Directories named .git are skipped.
type Tree struct {
	WS   *workspace.Workspace
	Root string
}

// Ingest makes the workspace match the tree:
// new and changed files are written,
// and workspace files with no counterpart under Root are deleted.
// Files whose content is unchanged are not rewritten,
// so they produce no change notifications.
func (t *Tree) Ingest(ctx context.Context) (written, removed int, err error) {
	return t.ingestDir(ctx, t.Root)
}

func (t *Tree) ingestDir(ctx context.Context, dir string) (written, removed int, err error) {
	seen := make(map[string]bool)

	err = filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		p, ok := t.wsPath(file)
		if !ok {
			return nil
		}
		seen[p] = true
		changed, err := t.writeFile(ctx, file, p)
		if err != nil {
			return err
		}
		if changed {
			written++
		}
		return nil
	})
	if err != nil {
		return written, removed, errors.Wrapf(err, "ingesting %s", dir)
	}

	prefix, ok := t.wsPath(dir)
	if !ok {
		return written, removed, nil
	}
	paths, err := t.WS.ListFiles(ctx)
	if err != nil {
		return written, removed, err
	}
	for _, p := range paths {
		if seen[p] || !under(p, prefix) {
			continue
		}
		if err := t.WS.DeleteFile(ctx, p); err != nil && !stderrs.Is(err, sitesync.ErrNotFound) {
			return written, removed, err
		}
		removed++
	}
	return written, removed, nil
}

// writeFile copies file to the workspace at p unless the workspace already has that content.
func (t *Tree) writeFile(ctx context.Context, file, p string) (bool, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", file)
	}
	old, err := t.WS.ReadFile(ctx, p)
	if err == nil && bytes.Equal(old, content) {
		return false, nil
	}
	if err != nil && !stderrs.Is(err, sitesync.ErrNotFound) {
		return false, err
	}
	return true, t.WS.WriteFile(ctx, p, content)
}

// FileChanged brings the workspace up to date with a change to file,
// which may have been created, modified, or removed,
// and may be a directory.
func (t *Tree) FileChanged(ctx context.Context, file string) error {
	p, ok := t.wsPath(file)
	if !ok {
		return nil
	}

	info, err := os.Lstat(file)
	if os.IsNotExist(err) {
		// A removed file or a removed directory.
		_, _, err = t.ingestDir(ctx, filepath.Dir(file))
		if os.IsNotExist(errors.Cause(err)) {
			return t.removeUnder(ctx, p)
		}
		return err
	}
	if err != nil {
		return errors.Wrapf(err, "statting %s", file)
	}

	if info.IsDir() {
		_, _, err = t.ingestDir(ctx, file)
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	_, err = t.writeFile(ctx, file, p)
	return err
}

func (t *Tree) removeUnder(ctx context.Context, prefix string) error {
	paths, err := t.WS.ListFiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if p != prefix && !under(p, prefix) {
			continue
		}
		if err := t.WS.DeleteFile(ctx, p); err != nil && !stderrs.Is(err, sitesync.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Run ingests the tree and then watches it for changes,
// applying each to the workspace,
// until ctx is canceled.
func (t *Tree) Run(ctx context.Context) error {
	root, err := filepath.Abs(t.Root)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", t.Root)
	}
	tt := &Tree{WS: t.WS, Root: root}

	fsch := make(chan notify.EventInfo, 100)
	if err := notify.Watch(filepath.Join(root, "..."), fsch, notify.All); err != nil {
		return errors.Wrapf(err, "watching %s/...", root)
	}
	defer notify.Stop(fsch)

	written, removed, err := tt.Ingest(ctx)
	if err != nil {
		return err
	}
	log.Printf("ingested %s: %d written, %d removed", root, written, removed)

	for {
		select {
		case <-ctx.Done():
			log.Print("context canceled, exiting filesystem watcher")
			return nil

		case ev := <-fsch:
			if err := tt.FileChanged(ctx, ev.Path()); err != nil {
				log.Printf("ERROR handling change of file %s: %s", ev.Path(), err)
			}
		}
	}
}

// wsPath is the workspace path of a file under Root.
// It is false for files outside Root.
func (t *Tree) wsPath(file string) (string, bool) {
	rel, err := filepath.Rel(t.Root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

func under(p, dir string) bool {
	if dir == "/" {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}
