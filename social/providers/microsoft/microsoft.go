package microsoft

import (
	"fmt"

	"github.com/goliatone/go-bulwark/social"
)

// DefaultTenant accepts accounts from any Entra ID tenant.
const DefaultTenant = "common"

// JWKSURL returns the signing keys endpoint for tenant.
func JWKSURL(tenant string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", tenantOrDefault(tenant))
}

// Issuer returns the v2.0 issuer for tenant.
func Issuer(tenant string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenantOrDefault(tenant))
}

// New returns a validator for Microsoft identity platform ID tokens. The
// issuer is only pinned for a concrete tenant since multi tenant tokens
// carry the signing tenant id.
func New(clientID, tenant string) (*social.IDTokenValidator, error) {
	cfg := social.IDTokenConfig{
		Provider:         social.ProviderMicrosoft,
		ClientID:         clientID,
		JWKSURL:          JWKSURL(tenant),
		UsernameFallback: true,
	}
	switch tenantOrDefault(tenant) {
	case DefaultTenant, "organizations", "consumers":
	default:
		cfg.Issuers = []string{Issuer(tenant)}
	}
	return social.NewIDTokenValidator(cfg)
}

func tenantOrDefault(tenant string) string {
	if tenant == "" {
		return DefaultTenant
	}
	return tenant
}
