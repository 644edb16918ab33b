package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/service"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// OrganizationHeader selects the caller's active organization.
const OrganizationHeader = "X-Organization-ID"

type callerKey struct{}

// RequestCaller builds the service.Caller for the request from the
// authenticated identity, the active organization header and the client's
// network details. It must run after Authenticate and chi's RequestID.
func RequestCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := service.Caller{
			Identity:  auth.IdentityFromContext(r.Context()),
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: chimw.GetReqID(r.Context()),
		}

		if raw := r.Header.Get(OrganizationHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "Invalid "+OrganizationHeader+" header")
				return
			}
			caller.ActiveOrgID = &id
		}

		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFrom returns the request's caller. Outside RequestCaller it returns
// an anonymous caller carrying only the identity, if any.
func CallerFrom(ctx context.Context) service.Caller {
	if c, ok := ctx.Value(callerKey{}).(service.Caller); ok {
		return c
	}
	return service.Caller{
		Identity:  auth.IdentityFromContext(ctx),
		RequestID: chimw.GetReqID(ctx),
	}
}

// clientIP strips the port from RemoteAddr. Behind a trusted proxy the
// router has already rewritten it from the forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
