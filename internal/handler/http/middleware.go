package http

import (
	"mime"
	"net/http"

	"github.com/utafrali/authservice/pkg/httputil"
)

// ContentTypeJSON rejects request bodies declared as anything other than
// JSON. Requests without a Content-Type header pass, so bodiless POSTs such as
// /auth/refresh need no header.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mt, _, err := mime.ParseMediaType(ct)
			if err != nil || mt != "application/json" {
				httputil.WriteFailure(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
