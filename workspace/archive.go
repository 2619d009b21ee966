package workspace

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

// ImportArchive copies every file in a zip archive into the workspace,
// at the same relative path,
// by way of WriteFile
// (so each file produces one Updated event).
//
// The archive is only read, never mounted into the workspace.
// There is no transactional guarantee:
// if a write fails part way through,
// the files copied before it remain,
// and the error says how many there were.
func (w *Workspace) ImportArchive(ctx context.Context, data []byte) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, errors.Wrap(err, "opening archive")
	}

	var n int
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		content, err := readZipFile(f)
		if err != nil {
			return n, errors.Wrapf(err, "reading %s from archive (after importing %d files)", f.Name, n)
		}
		if err = w.WriteFile(ctx, f.Name, content); err != nil {
			return n, errors.Wrapf(err, "importing %s (after importing %d files)", f.Name, n)
		}
		n++
	}
	return n, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
