package login

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth0-login/internal/errors"
	"github.com/jrsteele09/go-auth0-login/oauth2"
	"github.com/jrsteele09/go-auth0-login/pkce"
)

// VerifyTokenHashes checks the at_hash claim of the id token against the
// access token, using the hash that matches the id token's alg header. The
// id token signature is not verified. An id token without at_hash passes.
func VerifyTokenHashes(tr *oauth2.TokenResponse) error {
	if tr == nil || tr.IdToken == "" {
		return errors.Wrapf(errors.ErrParse, "token response has no id_token")
	}

	claims := jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(tr.IdToken, claims)
	if err != nil {
		return errors.Wrapf(errors.ErrParse, "id_token: %v", err)
	}

	atHash, ok := claims["at_hash"].(string)
	if !ok {
		return nil
	}
	alg, _ := token.Header["alg"].(string)
	if err := pkce.ValidateHash(tr.AccessToken, atHash, alg); err != nil {
		return errors.Wrapf(err, "at_hash")
	}
	return nil
}
