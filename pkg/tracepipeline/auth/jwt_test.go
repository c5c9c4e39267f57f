// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, claims map[string]any, exp time.Time) string {
	t.Helper()
	tok := jwt.New()
	for k, v := range claims {
		require.NoError(t, tok.Set(k, v))
	}
	require.NoError(t, tok.Set(jwt.ExpirationKey, exp))
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	require.NoError(t, err)
	return string(signed)
}

func TestValidate_AcceptsWellFormedToken(t *testing.T) {
	secret := []byte("test-secret")
	v := NewValidator(secret, "", "")

	tok := signToken(t, secret, map[string]any{"project": "acme", "sub": "sdk-1"}, time.Now().Add(time.Hour))

	claims, err := v.Validate(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, "acme", claims.Project)
	require.Equal(t, "sdk-1", claims.Subject)
}

func TestValidate_RejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	v := NewValidator(secret, "", "")

	tok := signToken(t, secret, map[string]any{"project": "acme"}, time.Now().Add(-time.Hour))

	_, err := v.Validate(context.Background(), tok)
	require.Error(t, err)
}

func TestValidate_RejectsMissingProjectClaim(t *testing.T) {
	secret := []byte("test-secret")
	v := NewValidator(secret, "", "")

	tok := signToken(t, secret, map[string]any{"sub": "sdk-1"}, time.Now().Add(time.Hour))

	_, err := v.Validate(context.Background(), tok)
	require.Error(t, err)
}

func TestValidate_RejectsWrongSecret(t *testing.T) {
	v := NewValidator([]byte("right-secret"), "", "")

	tok := signToken(t, []byte("wrong-secret"), map[string]any{"project": "acme"}, time.Now().Add(time.Hour))

	_, err := v.Validate(context.Background(), tok)
	require.Error(t, err)
}
