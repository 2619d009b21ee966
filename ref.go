package sitesync

import (
	"bytes"
	"crypto"
	_ "crypto/sha256" // register crypto.SHA256
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
)

// DigestSize is the length in bytes of a content digest.
const DigestSize = 32

// Ref is the content hash of a file: its sha256 digest.
type Ref [DigestSize]byte

// Zero is the zero value of a Ref.
var Zero Ref

// Hash computes the Ref of b.
// It fails with ErrHashingUnavailable
// if no sha256 implementation is linked into the binary.
func Hash(b []byte) (Ref, error) {
	if !crypto.SHA256.Available() {
		return Zero, ErrHashingUnavailable
	}
	h := crypto.SHA256.New()
	h.Write(b)

	var r Ref
	h.Sum(r[:0])
	return r, nil
}

// DigestToInt interprets a 32-byte digest as an unsigned 256-bit integer.
// Byte 0 is the least significant byte.
// This must agree with the remote side's little-endian u256 decoder.
func DigestToInt(d []byte) (*big.Int, error) {
	if len(d) != DigestSize {
		return nil, errors.Wrapf(ErrInvalidDigestLength, "got %d bytes", len(d))
	}
	be := make([]byte, DigestSize)
	for i, b := range d {
		be[DigestSize-1-i] = b
	}
	return new(big.Int).SetBytes(be), nil
}

// Int is r as a little-endian unsigned integer.
func (r Ref) Int() *big.Int {
	n, _ := DigestToInt(r[:]) // length is always right
	return n
}

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

func (r Ref) IsZero() bool {
	return r == Zero
}

func RefFromHex(s string) (Ref, error) {
	var out Ref
	if len(s) != 2*DigestSize {
		return out, errors.New("wrong length")
	}
	_, err := hex.Decode(out[:], []byte(s))
	return out, err
}
