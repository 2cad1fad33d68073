package oidc

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unsigned(payload string) string {
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"none"}`)) + "." + enc([]byte(payload)) + "."
}

func TestInsecureVerifierReadsClaims(t *testing.T) {
	v := NewInsecureVerifier()
	tok, err := v.Verify(context.Background(), unsigned(`{"sub":"dev","name":"Dev User"}`))
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "dev", claims["sub"])
	require.Equal(t, "Dev User", claims["name"])
}

func TestInsecureVerifierRejectsExpiredAndMalformed(t *testing.T) {
	v := NewInsecureVerifier()
	v.now = func() time.Time { return time.Unix(2000, 0) }

	_, err := v.Verify(context.Background(), unsigned(`{"sub":"dev","exp":1000}`))
	require.Error(t, err)

	_, err = v.Verify(context.Background(), "garbage")
	require.Error(t, err)
	_, err = v.Verify(context.Background(), "a.%%%.b")
	require.Error(t, err)
}

func TestKeycloakIssuer(t *testing.T) {
	require.Equal(t, "https://kc.example.com/realms/lumen", KeycloakIssuer("https://kc.example.com/", "lumen"))
	require.Equal(t, "https://kc.example.com/realms/lumen", KeycloakIssuer("https://kc.example.com/realms/lumen", ""))
}
