package site

import (
	"mime"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync/workspace"
)

// LocalSnapshot builds the snapshot a workspace intends to publish.
// Each asset becomes a resource with the headers cfg gives for its path.
// A resource with no content-type header gets one
// guessed from its file extension, when possible.
// The config file itself and any asset matching an ignore pattern are left out.
// A nil cfg means no configuration.
func LocalSnapshot(assets []workspace.Asset, cfg *Config) (Snapshot, error) {
	if cfg == nil {
		cfg = new(Config)
	}

	snap := Snapshot{
		Metadata: cfg.Metadata,
		SiteName: cfg.SiteName,
	}
	if cfg.Routes != nil {
		routes := append(Routes{}, (*cfg.Routes)...)
		snap.Routes = &routes
	}

	for _, a := range assets {
		if a.Path == ConfigPath {
			continue
		}
		ignored, err := matchesAny(a.Path, cfg.Ignore)
		if err != nil {
			return Snapshot{}, err
		}
		if ignored {
			continue
		}

		hdrs := append([]Header(nil), cfg.Headers[a.Path]...)
		if !hasHeader(hdrs, "content-type") {
			if ct := mime.TypeByExtension(path.Ext(a.Path)); ct != "" {
				hdrs = append(hdrs, Header{Key: "content-type", Value: ct})
			}
		}

		snap.Resources = append(snap.Resources, Resource{
			Path:     a.Path,
			BlobHash: a.HashInt,
			Headers:  hdrs,
		})
	}

	return snap, nil
}

func matchesAny(p string, patterns []string) (bool, error) {
	for _, pat := range patterns {
		ok, err := path.Match(pat, p)
		if err != nil {
			return false, errors.Wrapf(err, "bad ignore pattern %q", pat)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func hasHeader(hdrs []Header, key string) bool {
	for _, h := range hdrs {
		if strings.EqualFold(h.Key, key) {
			return true
		}
	}
	return false
}
