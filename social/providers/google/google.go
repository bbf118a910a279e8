package google

import (
	"github.com/goliatone/go-bulwark/social"
)

const (
	JWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// Issuers are the values Google places in the iss claim.
var Issuers = []string{"accounts.google.com", "https://accounts.google.com"}

// New returns a validator for Google ID tokens issued to clientID.
func New(clientID string) (*social.IDTokenValidator, error) {
	return social.NewIDTokenValidator(social.IDTokenConfig{
		Provider: social.ProviderGoogle,
		ClientID: clientID,
		JWKSURL:  JWKSURL,
		Issuers:  Issuers,
	})
}
