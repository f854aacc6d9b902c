// Package pkce holds the cryptographic helpers used by a headless login:
// PKCE verifier/challenge pairs, random state and nonce values, and the
// OIDC left-half hash check used for at_hash and c_hash claims.
package pkce
