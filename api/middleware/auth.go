package middleware

import (
	"net/http"
	"strings"

	"github.com/dealerhub/dealer-pricing/api/responses"
	pkgAuth "github.com/dealerhub/dealer-pricing/pkg/auth"
	"github.com/dealerhub/dealer-pricing/pkg/config"
	pkgerrors "github.com/dealerhub/dealer-pricing/pkg/errors"
	"github.com/dealerhub/dealer-pricing/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the actor.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithActor(r.Context(), claims.Subject, string(claims.Role))
			if logg != nil {
				ctx = logg.WithActorID(ctx, claims.Subject)
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
