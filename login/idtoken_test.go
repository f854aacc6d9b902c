package login_test

import (
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth0-login/internal/errors"
	"github.com/jrsteele09/go-auth0-login/login"
	"github.com/jrsteele09/go-auth0-login/oauth2"
	"github.com/jrsteele09/go-auth0-login/pkce"
	"github.com/stretchr/testify/require"
)

func signedIDToken(t *testing.T, method jwtlib.SigningMethod, claims jwtlib.MapClaims) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(method, claims).SignedString([]byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenHashes(t *testing.T) {
	const accessToken = "eyJhbGciOiJIUzI1NiJ9.payload.signature"

	for _, method := range []jwtlib.SigningMethod{jwtlib.SigningMethodHS256, jwtlib.SigningMethodHS384, jwtlib.SigningMethodHS512} {
		t.Run("matching "+method.Alg(), func(t *testing.T) {
			atHash, err := pkce.LeftHalfHash(accessToken, method.Alg())
			require.NoError(t, err)

			tr := &oauth2.TokenResponse{
				AccessToken: accessToken,
				IdToken:     signedIDToken(t, method, jwtlib.MapClaims{"sub": "user", "at_hash": atHash}),
			}
			require.NoError(t, login.VerifyTokenHashes(tr))
		})
	}

	t.Run("mismatch", func(t *testing.T) {
		atHash, err := pkce.LeftHalfHash("another token", "HS256")
		require.NoError(t, err)

		tr := &oauth2.TokenResponse{
			AccessToken: accessToken,
			IdToken:     signedIDToken(t, jwtlib.SigningMethodHS256, jwtlib.MapClaims{"at_hash": atHash}),
		}
		err = login.VerifyTokenHashes(tr)
		require.True(t, errors.Is(err, errors.ErrHashMismatch))
	})

	t.Run("no at_hash", func(t *testing.T) {
		tr := &oauth2.TokenResponse{
			AccessToken: accessToken,
			IdToken:     signedIDToken(t, jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": "user"}),
		}
		require.NoError(t, login.VerifyTokenHashes(tr))
	})

	t.Run("no id token", func(t *testing.T) {
		err := login.VerifyTokenHashes(&oauth2.TokenResponse{AccessToken: accessToken})
		require.True(t, errors.Is(err, errors.ErrParse))
	})

	t.Run("malformed id token", func(t *testing.T) {
		err := login.VerifyTokenHashes(&oauth2.TokenResponse{AccessToken: accessToken, IdToken: "not-a-jwt"})
		require.True(t, errors.Is(err, errors.ErrParse))
	})
}
