package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestVerifierHS256(t *testing.T) {
	v := NewVerifier("secret", nil)
	token, err := SignHS256(Claims{Sub: "client-1", Role: "client", Exp: time.Now().Add(time.Hour).Unix()}, "secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Sub != "client-1" {
		t.Fatalf("unexpected sub %q", claims.Sub)
	}

	if _, err := NewVerifier("", nil).Verify(context.Background(), token); err == nil {
		t.Fatal("expected failure when HS256 is disabled")
	}
}

func TestVerifierRS256ThroughJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	token, err := signRS256(Claims{Sub: "staff-1", Role: "admin", Exp: time.Now().Add(time.Hour).Unix()}, key, "kid-1")
	if err != nil {
		t.Fatalf("signRS256 failed: %v", err)
	}

	v := NewVerifier("", NewJWKSClient(srv.URL, time.Minute))
	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Role != "admin" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestJWKSClientCachesAndThrottles(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{
			{
				Kty: "RSA",
				Kid: "kid-1",
				N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			},
			{Kty: "EC", Kid: "kid-ec"},
		}})
	}))
	defer srv.Close()

	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	c := NewJWKSClient(srv.URL, time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := c.Get(ctx, "kid-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := c.Get(ctx, "kid-1"); err != nil || hits.Load() != 1 {
		t.Fatalf("expected cached key, hits=%d err=%v", hits.Load(), err)
	}
	if _, err := c.Get(ctx, "kid-ec"); err != ErrKeyNotFound {
		t.Fatalf("non-RSA key must be skipped, got %v", err)
	}
	if _, err := c.Get(ctx, "kid-unknown"); err != ErrKeyNotFound || hits.Load() != 1 {
		t.Fatalf("unknown kid refetch must be throttled, hits=%d err=%v", hits.Load(), err)
	}

	now = now.Add(2 * time.Minute)
	srv.Close()
	if _, err := c.Get(ctx, "kid-1"); err != nil {
		t.Fatalf("stale key should keep serving when the endpoint is down: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("expected abc, got %q", tok)
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatal("basic auth must not be accepted")
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatal("empty token must not be accepted")
	}
}
