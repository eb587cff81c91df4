package rbac

import (
	"context"
	"net/http"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
)

type claimContextKey struct{}

// ContextWithClaim stores the verified claim in ctx.
func ContextWithClaim(ctx context.Context, claim *Claim) context.Context {
	return context.WithValue(ctx, claimContextKey{}, claim)
}

// ClaimFromContext returns the claim placed by the gate or RequireRoles, if any.
func ClaimFromContext(ctx context.Context) *Claim {
	claim, _ := ctx.Value(claimContextKey{}).(*Claim)
	return claim
}

// RequireRoles guards JSON API routes, which sit outside the gate's matcher.
// Missing sessions get 401, roles outside allowed get 403.
func RequireRoles(verifier SessionVerifier, allowed ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claim := ClaimFromContext(r.Context())
			if claim == nil && verifier != nil {
				verified, err := verifier.Verify(r)
				if err == nil && verified != nil {
					c := *verified
					if !c.Role.Valid() {
						c.Role, _ = ParseRole(string(verified.Role))
					}
					claim = &c
				}
			}
			if claim == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			if len(allowed) > 0 && !containsRole(allowed, claim.Role) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaim(r.Context(), claim)))
		})
	}
}
