package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/bobg/sitesync/site"
)

// Object types.
const (
	SiteType         = "site"
	DynamicFieldType = "dynamic_field"
)

// Dynamic field name types.
const (
	ResourcePathName = "resource_path"
	VectorU8Name     = "vector<u8>"
)

// SiteContent is the content of a site object.
type SiteContent struct {
	Name     *string       `json:"name"`
	Metadata site.Metadata `json:"metadata"`
}

func (c *SiteContent) check() error {
	if c.Name == nil {
		return &SchemaError{Field: "name", Reason: "missing"}
	}
	return nil
}

// FieldContent is the content of a dynamic field object.
// The shape of Value depends on Name.Type.
type FieldContent struct {
	Name  FieldName       `json:"name"`
	Value json.RawMessage `json:"value"`
}

// FieldName is the key of a dynamic field.
type FieldName struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c *FieldContent) check() error {
	if c.Name.Type == "" {
		return &SchemaError{Field: "name.type", Reason: "missing"}
	}
	if len(c.Value) == 0 || string(c.Value) == "null" {
		return &SchemaError{Field: "value", Reason: "missing"}
	}
	return nil
}

// ResourceValue is the value of a resource field.
// BlobHash is a decimal integer.
type ResourceValue struct {
	Path     string        `json:"path"`
	BlobID   string        `json:"blob_id"`
	BlobHash string        `json:"blob_hash"`
	Headers  []site.Header `json:"headers"`
}

func (v *ResourceValue) check() error {
	if v.Path == "" {
		return &SchemaError{Field: "path", Reason: "missing"}
	}
	if v.BlobHash == "" {
		return &SchemaError{Field: "blob_hash", Reason: "missing"}
	}
	return nil
}

// RoutesValue is the value of a routes field.
type RoutesValue struct {
	RouteList []site.Route `json:"route_list"`
}

func (v *RoutesValue) check() error {
	if v.RouteList == nil {
		return &SchemaError{Field: "route_list", Reason: "missing"}
	}
	return nil
}

// SchemaError means remote content does not have the expected shape.
type SchemaError struct {
	Object string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("object %s, field %s: %s", e.Object, e.Field, e.Reason)
}

type checker interface {
	check() error
}

// decodeStrict decodes data into v,
// rejecting unknown fields and trailing data,
// and then checks that v's required fields are present.
func decodeStrict(objID string, data []byte, v checker) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &SchemaError{Object: objID, Field: "(content)", Reason: err.Error()}
	}
	if _, err := dec.Token(); err != io.EOF {
		return &SchemaError{Object: objID, Field: "(content)", Reason: "trailing data"}
	}
	if err := v.check(); err != nil {
		var serr *SchemaError
		if errors.As(err, &serr) && serr.Object == "" {
			serr.Object = objID
		}
		return err
	}
	return nil
}

func expectType(obj Object, typ string) error {
	if obj.Type != typ {
		return &SchemaError{Object: obj.ID, Field: "type", Reason: fmt.Sprintf("got %q, want %q", obj.Type, typ)}
	}
	return nil
}
