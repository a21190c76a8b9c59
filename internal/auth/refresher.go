package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/mailmatrix/backend/internal/store"
)

// Refresher exchanges a stale credential for a fresh one using the
// stored refresh token. It implements ingest.TokenRefresher; the
// pipeline invokes it at most once per user per tick.
type Refresher struct {
	Google    *oauth2.Config
	Microsoft *oauth2.Config
}

// Refresh performs one silent refresh against the credential's provider.
// The returned credential carries the new access token and expiry; the
// refresh token is kept unless the provider rotated it.
func (r *Refresher) Refresh(ctx context.Context, cred store.Credential) (store.Credential, error) {
	config := r.Google
	if cred.Provider == store.ProviderMicrosoft {
		config = r.Microsoft
	}
	if config == nil {
		return cred, fmt.Errorf("no oauth config for provider %q", cred.Provider)
	}
	if cred.RefreshToken == "" {
		return cred, fmt.Errorf("credential for %s has no refresh token", cred.UserEmail)
	}

	source := config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return cred, fmt.Errorf("refresh token: %w", err)
	}

	cred.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}
	cred.Expiry = token.Expiry

	return cred, nil
}
