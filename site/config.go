package site

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ConfigPath is where a workspace keeps its site configuration.
// The file is not itself published.
const ConfigPath = "/ws-resources.json"

// Config is the site configuration kept alongside the files of a workspace.
//
//	{
//	  "headers":   {"/index.html": {"Content-Type": "text/html"}},
//	  "routes":    {"/*": "/index.html"},
//	  "metadata":  {"link": "...", "description": "..."},
//	  "site_name": "my site",
//	  "object_id": "0x...",
//	  "ignore":    ["/private/*"]
//	}
//
// Header and route order follow the order of keys in the file.
type Config struct {
	Headers  map[string][]Header
	Routes   *Routes
	Metadata Metadata
	SiteName *string
	ObjectID string
	Ignore   []string
}

type rawConfig struct {
	Headers  json.RawMessage `json:"headers"`
	Routes   json.RawMessage `json:"routes"`
	Metadata Metadata        `json:"metadata"`
	SiteName *string         `json:"site_name"`
	ObjectID string          `json:"object_id"`
	Ignore   []string        `json:"ignore"`
}

// LoadConfig reads a Config from a file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	cfg, err := ParseConfig(data)
	return cfg, errors.Wrapf(err, "parsing %s", filename)
}

// ParseConfig decodes a Config from JSON.
func ParseConfig(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}

	cfg := &Config{
		Metadata: raw.Metadata,
		SiteName: raw.SiteName,
		ObjectID: raw.ObjectID,
		Ignore:   raw.Ignore,
	}

	if len(raw.Headers) > 0 && string(raw.Headers) != "null" {
		paths, err := orderedKeys(raw.Headers)
		if err != nil {
			return nil, errors.Wrap(err, "decoding headers")
		}
		cfg.Headers = make(map[string][]Header, len(paths))
		for _, p := range paths {
			pairs, err := orderedPairs(p.value)
			if err != nil {
				return nil, errors.Wrapf(err, "decoding headers for %s", p.key)
			}
			var hdrs []Header
			for _, pair := range pairs {
				hdrs = append(hdrs, Header{Key: pair[0], Value: pair[1]})
			}
			cfg.Headers[p.key] = hdrs
		}
	}

	if len(raw.Routes) > 0 && string(raw.Routes) != "null" {
		pairs, err := orderedPairs(raw.Routes)
		if err != nil {
			return nil, errors.Wrap(err, "decoding routes")
		}
		routes := Routes{}
		for _, pair := range pairs {
			routes = append(routes, Route{Pattern: pair[0], Dest: pair[1]})
		}
		cfg.Routes = &routes
	}

	return cfg, nil
}

type keyed struct {
	key   string
	value json.RawMessage
}

// orderedKeys decodes a JSON object into its members,
// in the order they appear.
// Go maps do not remember that order.
func orderedKeys(data json.RawMessage) ([]keyed, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not a JSON object")
	}

	var result []keyed
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, errors.Wrapf(err, "decoding value for %s", key)
		}
		result = append(result, keyed{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return result, nil
}

// orderedPairs decodes a JSON object of strings into key/value pairs,
// in the order they appear.
func orderedPairs(data json.RawMessage) ([][2]string, error) {
	members, err := orderedKeys(data)
	if err != nil {
		return nil, err
	}
	pairs := make([][2]string, 0, len(members))
	for _, m := range members {
		var s string
		if err := json.Unmarshal(m.value, &s); err != nil {
			return nil, errors.Wrapf(err, "value for %s", m.key)
		}
		pairs = append(pairs, [2]string{m.key, s})
	}
	return pairs, nil
}
