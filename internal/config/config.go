package config

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	OidcConfig
	PlanningConfig
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Oidc
	Planning
}

func New() Config {
	return mainConfig{}
}
