package modules

import (
	"strings"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/api/middleware"
	"givedesk.io/backoffice/internal/config"
)

// NewJWTConfig builds the token configuration from security settings.
func NewJWTConfig(cfg *config.Config) middleware.JWTConfig {
	verificationKeys := make([][]byte, 0, len(cfg.Security.JWTVerificationKeys))
	for _, key := range cfg.Security.JWTVerificationKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		verificationKeys = append(verificationKeys, []byte(key))
	}

	return middleware.JWTConfig{
		SigningKey:       []byte(cfg.Security.JWTSecret),
		VerificationKeys: verificationKeys,
		Issuer:           cfg.Security.JWTIssuer,
		ExpiresIn:        cfg.Security.TokenLifetime,
	}
}

// NewServerDeps lets each module contribute explicit wiring.
func NewServerDeps(mods []Module) handlers.ServerDeps {
	var deps handlers.ServerDeps
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}
