package handler

import (
	"net/http"
)

// userIDHeader carries the caller identity resolved by the auth gateway in
// front of this service. The value is trusted as-is; token verification
// happened upstream.
const userIDHeader = "X-User-ID"

// callerID extracts the authenticated user id from the request. It reports
// false when the header is absent, which means the request bypassed the
// gateway and must be rejected.
func callerID(r *http.Request) (string, bool) {
	id := r.Header.Get(userIDHeader)
	return id, id != ""
}
