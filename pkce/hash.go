package pkce

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"strconv"
	"unicode/utf8"

	"github.com/jrsteele09/go-auth0-login/internal/errors"
)

// GetMatchingHash picks the hash function for a JWS algorithm name from its
// trailing bit length, e.g. RS256 -> SHA-256, ES384 -> SHA-384, PS512 -> SHA-512.
func GetMatchingHash(signatureAlgorithm string) (hash.Hash, error) {
	if len(signatureAlgorithm) < 3 {
		return nil, errors.Wrapf(errors.ErrUnsupportedAlgorithm, "algorithm %q", signatureAlgorithm)
	}
	bits, err := strconv.Atoi(signatureAlgorithm[len(signatureAlgorithm)-3:])
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnsupportedAlgorithm, "algorithm %q", signatureAlgorithm)
	}

	switch bits {
	case 256:
		return sha256.New(), nil
	case 384:
		return sha512.New384(), nil
	case 512:
		return sha512.New(), nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedAlgorithm, "algorithm %q", signatureAlgorithm)
	}
}

// LeftHalfHash hashes the ASCII octets of data with the algorithm matching
// signatureAlgorithm and returns the base64url encoding of the left-most half
// of the digest. Tokens are ASCII; any other character is hashed as '?', one
// per UTF-16 code unit.
func LeftHalfHash(data, signatureAlgorithm string) (string, error) {
	h, err := GetMatchingHash(signatureAlgorithm)
	if err != nil {
		return "", err
	}
	h.Write(asciiBytes(data))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}

// ValidateHash checks an OIDC at_hash / c_hash style value: the left half of
// the digest of data must base64url-encode to exactly hashedData.
func ValidateHash(data, hashedData, signatureAlgorithm string) error {
	leftPart, err := LeftHalfHash(data, signatureAlgorithm)
	if err != nil {
		return err
	}
	if leftPart != hashedData {
		return errors.Wrapf(errors.ErrHashMismatch, "data (%s) does not match hash from token (%s)", leftPart, hashedData)
	}
	return nil
}

func asciiBytes(s string) []byte {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r < utf8.RuneSelf:
			b = append(b, byte(r))
		case r > 0xFFFF:
			b = append(b, '?', '?')
		default:
			b = append(b, '?')
		}
	}
	return b
}
