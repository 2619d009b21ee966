package chain

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/bobg/sitesync"
)

// childObjectIDScope is the domain-separation byte
// that starts the preimage of every dynamic field id.
const childObjectIDScope = 0xf0

// VectorU8Tag is the serialized type tag of a byte-vector key.
var VectorU8Tag = []byte{6, 1}

// Type-tag variant of a struct type.
const structTagVariant = 7

// The struct type of resource-path keys,
// defined by the site package.
const (
	ResourcePathModule = "site"
	ResourcePathStruct = "ResourcePath"
)

// RoutesKey is the name of the dynamic field holding a site's routes.
const RoutesKey = "routes"

// ParseID decodes a hex object id,
// with or without a 0x prefix.
// Ids shorter than 32 bytes are left-padded with zeroes.
func ParseID(id string) ([32]byte, error) {
	var out [32]byte

	s := strings.TrimPrefix(strings.TrimPrefix(id, "0x"), "0X")
	if s == "" || len(s) > 64 {
		return out, errors.Wrapf(sitesync.ErrInvalidObjectID, "%q", id)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, errors.Wrapf(sitesync.ErrInvalidObjectID, "%q: %s", id, err)
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// FormatID is the canonical text form of an object id.
func FormatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

// DeriveFieldID computes the id of the dynamic field of parent
// whose key has the given serialized type tag and serialized bytes.
// It needs no round trip to the remote side.
//
// The id is the blake2b-256 hash of
// the scope byte 0xf0,
// the 32-byte parent id,
// the key length as a little-endian uint64,
// the key,
// and the type tag.
func DeriveFieldID(parent string, typeTag, key []byte) (string, error) {
	p, err := ParseID(parent)
	if err != nil {
		return "", err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", errors.Wrap(err, "creating hasher")
	}

	var lenbuf [8]byte
	binary.LittleEndian.PutUint64(lenbuf[:], uint64(len(key)))

	h.Write([]byte{childObjectIDScope})
	h.Write(p[:])
	h.Write(lenbuf[:])
	h.Write(key)
	h.Write(typeTag)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return FormatID(out), nil
}

// SerializeBytes is the serialized form of a byte-vector key:
// its ULEB128 length followed by the bytes.
func SerializeBytes(b []byte) []byte {
	out := binary.AppendUvarint(make([]byte, 0, len(b)+binary.MaxVarintLen64), uint64(len(b)))
	return append(out, b...)
}

// StructTag is the serialized type tag of the struct type pkg::module::name,
// instantiated with the given serialized type tags, if any.
// The layout is the variant byte 7,
// the 32-byte package address,
// the module and struct names each as a ULEB128 length and bytes,
// and the ULEB128 count of type parameters followed by each one.
func StructTag(pkg, module, name string, typeParams ...[]byte) ([]byte, error) {
	addr, err := ParseID(pkg)
	if err != nil {
		return nil, errors.Wrap(err, "package address")
	}
	out := append([]byte{structTagVariant}, addr[:]...)
	out = append(out, SerializeBytes([]byte(module))...)
	out = append(out, SerializeBytes([]byte(name))...)
	out = binary.AppendUvarint(out, uint64(len(typeParams)))
	for _, p := range typeParams {
		out = append(out, p...)
	}
	return out, nil
}

// ResourcePathTag is the serialized type tag of resource-path keys
// for the site package at pkg.
func ResourcePathTag(pkg string) ([]byte, error) {
	return StructTag(pkg, ResourcePathModule, ResourcePathStruct)
}

// RoutesFieldID is the id of the routes field of the site with the given id.
func RoutesFieldID(siteID string) (string, error) {
	return DeriveFieldID(siteID, VectorU8Tag, SerializeBytes([]byte(RoutesKey)))
}

// ResourceFieldID is the id of the field of the given site
// holding the resource at path.
// The site package at pkg defines the key type.
// A resource-path key is a struct with a single string field,
// so it serializes the same as the bytes of path.
func ResourceFieldID(siteID, pkg, path string) (string, error) {
	tag, err := ResourcePathTag(pkg)
	if err != nil {
		return "", err
	}
	return DeriveFieldID(siteID, tag, SerializeBytes([]byte(path)))
}
