package auth

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// NewGoogleConfig builds the OAuth config for the Google consent dance.
// Offline access is required so a refresh token is issued; gmail.readonly
// is what the ingestion pipeline reads with.
func NewGoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/gmail.readonly",
		},
		Endpoint: google.Endpoint,
	}
}
