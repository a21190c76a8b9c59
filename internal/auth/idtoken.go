package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// IDTokenVerifier validates the ID token Google returns alongside the
// access token and extracts the user's email. Keys are fetched from
// Google's JWKS endpoint through a refreshing cache, so verification
// normally needs no network call.
type IDTokenVerifier struct {
	clientID string
	cache    *jwk.Cache
}

// NewIDTokenVerifier creates a verifier for ID tokens issued to clientID.
func NewIDTokenVerifier(ctx context.Context, clientID string) (*IDTokenVerifier, error) {
	cache := jwk.NewCache(ctx)

	if err := cache.Register(googleJWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	return &IDTokenVerifier{
		clientID: clientID,
		cache:    cache,
	}, nil
}

// Email verifies the raw ID token and returns its email claim.
func (v *IDTokenVerifier) Email(ctx context.Context, rawToken string) (string, error) {
	keySet, err := v.cache.Get(ctx, googleJWKSURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(rawToken),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithAudience(v.clientID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to parse ID token: %w", err)
	}

	// Google issues tokens under both spellings of its issuer.
	if iss := token.Issuer(); iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return "", fmt.Errorf("unexpected ID token issuer %q", iss)
	}

	emailClaim, ok := token.Get("email")
	if !ok {
		return "", fmt.Errorf("ID token missing email claim")
	}

	email, _ := emailClaim.(string)
	if email == "" {
		return "", fmt.Errorf("ID token missing email claim")
	}

	return email, nil
}
