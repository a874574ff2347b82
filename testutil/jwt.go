// Package testutil holds mock servers and token builders shared by package tests.
package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("testutil-signing-key")

// SignedToken returns an HS256 JWT with the given exp claim. seq is stored
// as jti so consecutive tokens differ.
func SignedToken(tb testing.TB, exp int64, seq int) string {
	tb.Helper()
	claims := jwt.MapClaims{
		"iss": "https://discordbuilder.us.auth0.com/",
		"aud": "builder",
		"gty": "client-credentials",
		"jti": seq,
	}
	if exp != 0 {
		claims["exp"] = exp
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		tb.Fatalf("sign test token: %v", err)
	}
	return s
}

// RawToken assembles "header.payload.signature" with payload base64url-encoded as given.
func RawToken(payload string) string {
	return "h." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".s"
}
