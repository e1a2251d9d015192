package config

type OidcConfig interface {
	GetOidcTokenURL() string
	GetOidcRevocationURL() string
	GetOidcIssuerURL() string
	GetOidcClientID() string
	GetOidcClientSecret() string
}

type Oidc struct{}

var _ OidcConfig = Oidc{}

func (Oidc) GetOidcTokenURL() string {
	return GetEnv("OIDC_TOKEN_URL", "http://localhost:8000/token")
}

func (Oidc) GetOidcRevocationURL() string {
	return GetEnv("OIDC_REVOCATION_URL", "http://localhost:8000/revoke")
}

// GetOidcIssuerURL returns the issuer to verify supplied access tokens
// against. Empty means no verification (demo mode).
func (Oidc) GetOidcIssuerURL() string {
	return GetEnv("OIDC_ISSUER_URL", "")
}

func (Oidc) GetOidcClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "capital-planner-broker")
}

func (Oidc) GetOidcClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "broker-secret")
}
