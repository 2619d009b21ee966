package reconcile

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/bobg/sitesync/site"
)

// Kind tells what a Command does.
type Kind int

const (
	NewMetadata Kind = iota + 1
	NewSite
	UpdateMetadata
	UpdateName
	RemoveResourceIfExists
	NewRangeOption
	NewResource
	AddHeader
	AddResource
	ClearRoutes
	BurnSite
	CreateRoutes
	InsertRoute
	TransferSite
)

var kindNames = map[Kind]string{
	NewMetadata:            "new-metadata",
	NewSite:                "new-site",
	UpdateMetadata:         "update-metadata",
	UpdateName:             "update-name",
	RemoveResourceIfExists: "remove-resource-if-exists",
	NewRangeOption:         "new-range-option",
	NewResource:            "new-resource",
	AddHeader:              "add-header",
	AddResource:            "add-resource",
	ClearRoutes:            "clear-routes",
	BurnSite:               "burn-site",
	CreateRoutes:           "create-routes",
	InsertRoute:            "insert-route",
	TransferSite:           "transfer-site",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Command is one step of a transaction against the remote site.
// Commands are plain data.
// Executing them is up to a gateway.
//
// Which fields are set depends on Kind.
// Site is the handle of the site being changed,
// or empty when the command refers to the site
// created earlier in the same transaction.
type Command struct {
	Kind Kind   `json:"kind"`
	Site string `json:"site,omitempty"`

	// For NewMetadata.
	Metadata *site.Metadata `json:"metadata,omitempty"`

	// For NewSite and UpdateName.
	Name string `json:"name,omitempty"`

	// For the resource commands,
	// and for InsertRoute (the route's destination).
	Path     string   `json:"path,omitempty"`
	BlobHash *big.Int `json:"blob_hash,omitempty"`
	BlobID   string   `json:"blob_id,omitempty"`

	// For AddHeader, the header.
	// For InsertRoute, Key is the route pattern.
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`

	// For TransferSite.
	Owner string `json:"owner,omitempty"`
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Kind.String())
	if c.Site != "" {
		fmt.Fprintf(&b, " site=%s", c.Site)
	}
	switch c.Kind {
	case NewMetadata:
		if c.Metadata != nil {
			for _, f := range c.Metadata.Fields() {
				fmt.Fprintf(&b, " %s=%q", f.Name, f.Value)
			}
		}
	case NewSite, UpdateName:
		fmt.Fprintf(&b, " name=%q", c.Name)
	case RemoveResourceIfExists, NewRangeOption, AddResource:
		fmt.Fprintf(&b, " path=%s", c.Path)
	case NewResource:
		fmt.Fprintf(&b, " path=%s hash=%s", c.Path, c.BlobHash)
		if c.BlobID != "" {
			fmt.Fprintf(&b, " blob=%s", c.BlobID)
		}
	case AddHeader:
		fmt.Fprintf(&b, " path=%s %s=%q", c.Path, c.Key, c.Value)
	case InsertRoute:
		fmt.Fprintf(&b, " %s -> %s", c.Key, c.Path)
	case TransferSite:
		fmt.Fprintf(&b, " owner=%s", c.Owner)
	}
	return b.String()
}

// Plan writes cmds to w, one per line, numbered from 1.
func Plan(w io.Writer, cmds []Command) error {
	for i, c := range cmds {
		if _, err := fmt.Fprintf(w, "%3d. %s\n", i+1, c); err != nil {
			return err
		}
	}
	return nil
}
