package identity

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	methodSeparator = ":"
	headerSeparator = "\t"
)

// Keyer builds cache keys from requests.
// A key captures the request identity: method, absolute URL, and the
// values of the identity headers. The same Keyer must be used for both
// lookup and storage, or lookups silently miss.
type Keyer struct {
	// Headers that participate in request identity.
	// Empty by default: entries stored at startup are fetched without
	// client headers, so adding headers here means both sides of the
	// cache must set them identically.
	IdentityHeaders []string
}

// NewKeyer creates a Keyer with the given identity headers.
func NewKeyer(headers ...string) Keyer {
	return Keyer{IdentityHeaders: headers}
}

// Key returns the cache key for a request.
func (k Keyer) Key(r *http.Request) string {
	key := r.Method + methodSeparator + RequestURL(r) + headerSeparator
	for _, name := range k.IdentityHeaders {
		if v := r.Header.Get(name); v != "" {
			key = key + "\n" + strings.ToLower(name) + ": " + v
		}
	}
	return key
}

// RequestFromKey generates a caching-wise equal request to the request
// that resulted in the provided key, identity headers included.
// It returns an error if the request cannot for some reason be deducted.
func (k Keyer) RequestFromKey(key string) (*http.Request, error) {
	keyNoHeaders, headerPart, found := strings.Cut(key, headerSeparator)
	if !found {
		return nil, fmt.Errorf("malformed key: %s", key)
	}
	method, uri, found := strings.Cut(keyNoHeaders, methodSeparator)
	if !found {
		return nil, fmt.Errorf("malformed key: %s", key)
	}
	req, err := http.NewRequest(method, uri, nil)
	if err != nil {
		return req, err
	}
	for _, line := range strings.Split(headerPart, "\n") {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ": ")
		if found {
			req.Header.Add(name, value)
		}
	}
	return req, nil
}

// RequestURL reconstructs the absolute URL of a request.
// Requests received by a server carry a relative URL plus a Host header.
func RequestURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
