package auth

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// NewMicrosoftConfig builds the OAuth config for the Microsoft consent
// dance against the common tenant.
func NewMicrosoftConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"offline_access",
			"User.Read",
			"Mail.Read",
		},
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}
