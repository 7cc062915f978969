package auth

import (
	"net/http"
	"strings"
)

// KeySource attempts to pull an API key out of a request.
// Sources must not consume the request body; the form source only sees
// values that an earlier stage has already parsed.
type KeySource func(r *http.Request) string

// keySources in precedence order: query parameter, form body field,
// X-Api-Key header, Authorization bearer token. First non-empty wins.
var keySources = []KeySource{
	fromQuery,
	fromForm,
	fromHeader,
	fromBearer,
}

// ExtractKey returns the first key found across all sources, or "".
func ExtractKey(r *http.Request) string {
	for _, source := range keySources {
		if key := source(r); key != "" {
			return key
		}
	}
	return ""
}

func fromQuery(r *http.Request) string {
	return r.URL.Query().Get("key")
}

func fromForm(r *http.Request) string {
	if r.MultipartForm != nil {
		if vals := r.MultipartForm.Value["key"]; len(vals) > 0 {
			return vals[0]
		}
	}
	return r.PostForm.Get("key")
}

func fromHeader(r *http.Request) string {
	return r.Header.Get("X-Api-Key")
}

func fromBearer(r *http.Request) string {
	const prefix = "Bearer "
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, prefix) {
		return strings.TrimSpace(authz[len(prefix):])
	}
	return ""
}
