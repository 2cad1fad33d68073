package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/lumenpress/lumen/backend/go-services/pkg/middleware"
)

// Verifier checks ID tokens issued by an OIDC provider (Keycloak in
// deployment) for one client id.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the provider at issuer.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// KeycloakIssuer builds the realm issuer URL, or returns baseURL as-is when
// no realm is configured.
func KeycloakIssuer(baseURL, realm string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if realm == "" {
		return baseURL
	}
	return baseURL + "/realms/" + realm
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
