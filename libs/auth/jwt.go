package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// clockSkew tolerates small clock drift between the issuer and this service.
const clockSkew = 30 * time.Second

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	Exp  int64  `json:"exp"`
	Iat  int64  `json:"iat"`
	Nbf  int64  `json:"nbf,omitempty"`
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// token is a compact JWS split into its parts; signature is still encoded.
type token struct {
	header    Header
	payload   []byte
	signed    string
	signature string
}

func parseToken(raw string) (*token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[2] == "" {
		return nil, ErrInvalidToken
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	t := &token{payload: payload, signed: parts[0] + "." + parts[1], signature: parts[2]}
	if err := json.Unmarshal(headerJSON, &t.header); err != nil {
		return nil, ErrInvalidToken
	}
	return t, nil
}

// claims decodes the payload and enforces exp and nbf.
func (t *token) claims(now time.Time) (*Claims, error) {
	var c Claims
	if err := json.Unmarshal(t.payload, &c); err != nil {
		return nil, ErrInvalidToken
	}
	if c.Exp > 0 && now.Add(-clockSkew).Unix() > c.Exp {
		return nil, ErrInvalidToken
	}
	if c.Nbf > 0 && now.Add(clockSkew).Unix() < c.Nbf {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

func ParseHeader(raw string) (*Header, error) {
	t, err := parseToken(raw)
	if err != nil {
		return nil, err
	}
	return &t.header, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	headerJSON, err := json.Marshal(Header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signed := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signed + "." + hmacSHA256(signed, secret), nil
}

func ParseAndVerifyHS256(raw, secret string) (*Claims, error) {
	t, err := parseToken(raw)
	if err != nil {
		return nil, err
	}
	if t.header.Alg != "HS256" || !hmac.Equal([]byte(t.signature), []byte(hmacSHA256(t.signed, secret))) {
		return nil, ErrInvalidToken
	}
	return t.claims(time.Now())
}

func hmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyRS256(raw string, pubKey crypto.PublicKey) (*Claims, error) {
	rsaKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidToken
	}
	t, err := parseToken(raw)
	if err != nil {
		return nil, err
	}
	if t.header.Alg != "RS256" {
		return nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(t.signature)
	if err != nil {
		return nil, ErrInvalidToken
	}
	hash := sha256.Sum256([]byte(t.signed))
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, hash[:], sig); err != nil {
		return nil, ErrInvalidToken
	}
	return t.claims(time.Now())
}
