package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Factory creates a Backend from a config object,
// typically decoded from JSON.
type Factory func(context.Context, map[string]interface{}) (Backend, error)

var registry = make(map[string]Factory)

// Register makes a Backend type available to Create under the given key.
// It is normally called from the init function of the implementing package.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a Backend of the type registered under key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (Backend, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// Keys lists the registered backend types.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CreateNested creates the backend described by the "nested" object in conf.
// Wrapping backends (lru, compress, logging) use this.
func CreateNested(ctx context.Context, conf map[string]interface{}) (Backend, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	b, err := Create(ctx, nestedType, nested)
	return b, errors.Wrap(err, "creating nested backend")
}

// HasPrefix tells whether path is covered by prefix.
// A prefix of "/" covers everything.
func HasPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// IntParam gets an integer parameter from a backend config.
// It accepts the numeric types a decoded JSON config may hold.
func IntParam(conf map[string]interface{}, key string) (int, error) {
	switch v := conf[key].(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case interface{ Int64() (int64, error) }: // json.Number
		n, err := v.Int64()
		return int(n), errors.Wrapf(err, "parsing %q parameter", key)
	}
	return 0, errors.Errorf(`missing %q parameter`, key)
}
