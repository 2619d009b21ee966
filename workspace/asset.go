package workspace

import (
	"context"
	"math/big"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/sitesync"
)

// Asset is a file in the workspace together with its content hash.
type Asset struct {
	Path    string
	Content []byte
	Hash    sitesync.Ref

	// HashInt is Hash read as a little-endian unsigned integer.
	HashInt *big.Int
}

// NewAsset hashes content and produces an Asset.
func NewAsset(path string, content []byte) (Asset, error) {
	p, err := normalize(path)
	if err != nil {
		return Asset{}, err
	}
	ref, err := sitesync.Hash(content)
	if err != nil {
		return Asset{}, errors.Wrapf(err, "hashing %s", p)
	}
	n, err := sitesync.DigestToInt(ref[:])
	if err != nil {
		return Asset{}, errors.Wrapf(err, "converting hash of %s", p)
	}
	return Asset{Path: p, Content: content, Hash: ref, HashInt: n}, nil
}

// Assets reads and hashes every file in the workspace.
// The result is sorted by path.
// Callers should quiesce the workspace first:
// a write that lands during the call may or may not be reflected.
func (w *Workspace) Assets(ctx context.Context) ([]Asset, error) {
	paths, err := w.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	assets := make([]Asset, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			content, err := w.ReadFile(ctx, p)
			if err != nil {
				return err
			}
			assets[i], err = NewAsset(p, content)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return assets, nil
}
