package auth

import (
	"context"
	"strings"
)

// Verifier checks bearer tokens signed either with a shared HS256 secret or with an RS256 key
// published through JWKS. A nil JWKS client or an empty secret disables that algorithm.
type Verifier struct {
	secret string
	jwks   *JWKSClient
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret), jwks: jwks}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	switch header.Alg {
	case "HS256":
		if v.secret == "" {
			return nil, ErrInvalidToken
		}
		return ParseAndVerifyHS256(token, v.secret)
	case "RS256":
		if v.jwks == nil {
			return nil, ErrInvalidToken
		}
		key, err := v.jwks.Get(ctx, header.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		return VerifyRS256(token, key)
	default:
		return nil, ErrInvalidToken
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
