package sitesync

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// ObjectIDToURL produces the portal URL for a site object.
// The object id is hex, with or without a 0x prefix.
// Its numeric value, in lowercase base 36,
// becomes the subdomain of portal.
func ObjectIDToURL(id, portal string, https bool) (string, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(id, "0x"), "0X")
	if digits == "" {
		return "", errors.Wrapf(ErrInvalidObjectID, "empty id %q", id)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidObjectID, "not hex: %q", id)
	}
	n := new(big.Int).SetBytes(b)
	return scheme(https) + n.Text(36) + "." + portal, nil
}

// DomainToURL produces the portal URL for a name-service domain.
// The domain is used as the subdomain verbatim.
func DomainToURL(domain, portal string, https bool) string {
	return scheme(https) + domain + "." + portal
}

func scheme(https bool) string {
	if https {
		return "https://"
	}
	return "http://"
}
