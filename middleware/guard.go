// Package middleware provides net/http glue for hosts embedding the
// engine: a bearer-token guard and per-route capability requirements.
package middleware

import (
	"context"
	"net/http"
	"strings"

	idcore "github.com/guildworks/idcore"
)

type authResultContextKey struct{}

// AuthResultFromContext retrieves the validation result stored by Guard.
func AuthResultFromContext(ctx context.Context) (*idcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*idcore.AuthResult)
	return res, ok
}

// Guard validates the Authorization bearer token and stores the result
// in the request context. Requests without a valid access token get 401.
func Guard(engine *idcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability allows only requests whose validated token carries
// every named capability. Must run inside Guard; requests without a
// stored result get 401, requests missing a capability get 403.
func RequireCapability(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, name := range names {
				if !res.HasCapability(name) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
