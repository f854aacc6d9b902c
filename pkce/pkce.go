package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const (
	verifierEntropyBytes = 32
	stateEntropyBytes    = 16
)

// Data is a PKCE verifier and the S256 challenge derived from it.
// The verifier must be presented unmodified at the token endpoint.
type Data struct {
	CodeVerifier  string
	CodeChallenge string
}

// CreatePkceData generates a fresh verifier and its S256 challenge.
func CreatePkceData() *Data {
	verifier := randomString(verifierEntropyBytes)
	return &Data{
		CodeVerifier:  verifier,
		CodeChallenge: CodeChallenge(verifier),
	}
}

// CodeChallenge returns BASE64URL(SHA256(verifier)) without padding.
func CodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// CreateState returns a random anti-CSRF value.
func CreateState() string {
	return randomString(stateEntropyBytes)
}

// CreateNonce returns a random replay-protection value.
func CreateNonce() string {
	return randomString(stateEntropyBytes)
}

// randomString creates a random base64url string from n bytes of entropy
func randomString(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
