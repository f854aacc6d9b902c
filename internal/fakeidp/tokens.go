package fakeidp

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth0-login/pkce"
)

const tokenLifetime = 24 * time.Hour

// createAccessToken creates the access token for the audience of the transaction
func (p *Provider) createAccessToken(issuer string, txn *Transaction) (string, error) {
	now := p.nowTime()
	claims := jwtlib.MapClaims{
		"iss":   issuer,
		"sub":   subject(txn.UserName),
		"aud":   txn.Audience,
		"azp":   txn.ClientID,
		"scope": txn.Scope,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
		"jti":   uuid.New().String(),
	}
	return p.sign(claims)
}

// createIDToken creates an OpenID Connect ID token with an at_hash bound to accessToken
func (p *Provider) createIDToken(issuer string, txn *Transaction, accessToken string) (string, error) {
	atHash, err := pkce.LeftHalfHash(accessToken, jwtlib.SigningMethodHS256.Alg())
	if err != nil {
		return "", err
	}

	now := p.nowTime()
	claims := jwtlib.MapClaims{
		"iss":     issuer,
		"sub":     subject(txn.UserName),
		"aud":     txn.ClientID,
		"name":    txn.UserName,
		"iat":     now.Unix(),
		"exp":     now.Add(tokenLifetime).Unix(),
		"at_hash": atHash,
	}
	if txn.Nonce != "" {
		claims["nonce"] = txn.Nonce
	}
	return p.sign(claims)
}

func (p *Provider) sign(claims jwtlib.MapClaims) (string, error) {
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}

func subject(userName string) string {
	return "auth0|" + userName
}
