package httpx

import (
	"context"
	"net/http"
	"strings"
)

// HeaderCallerID carries the opaque identity of the admin making a change.
const HeaderCallerID = "X-Caller-Id"

type callerKey struct{}

// RequireCaller rejects requests without a caller id and stores it on the context.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderCallerID))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderCallerID})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, id)))
	})
}

func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}
