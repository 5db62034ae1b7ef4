package strategycache

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/strategy-cache/strategy-cache/identity"
)

// Class is the routing decision for an intercepted request.
// It determines which caching strategy handles the request.
type Class int

const (
	// ClassBypass means the request must not be intercepted at all.
	ClassBypass Class = iota
	ClassFont
	ClassDocument
	ClassStaticAsset
	ClassDefault
)

func (c Class) String() string {
	switch c {
	case ClassBypass:
		return "bypass"
	case ClassFont:
		return "font"
	case ClassDocument:
		return "document"
	case ClassStaticAsset:
		return "static-asset"
	default:
		return "default"
	}
}

// Classifier maps requests to strategy classes.
// Classification is pure: no I/O, no stored state beyond the rule sets.
type Classifier struct {
	// Hosts that must never be intercepted (the origin's own backend).
	BypassHosts []string
	// Hosts serving web font assets.
	FontHosts []string
	// Path extensions treated as static assets.
	AssetExtensions []string
}

// NewClassifier creates a Classifier with the given bypass hosts and
// the default font host and asset extension rules.
func NewClassifier(bypassHosts ...string) Classifier {
	return Classifier{
		BypassHosts:     bypassHosts,
		FontHosts:       []string{"fonts.googleapis.com", "fonts.gstatic.com"},
		AssetExtensions: []string{".js", ".css"},
	}
}

// Classify assigns a strategy class to a request.
// Checks are evaluated top-down and the first match wins;
// bypass checks run before any class assignment.
func (c Classifier) Classify(r *http.Request) Class {
	u, err := url.Parse(identity.RequestURL(r))
	if err != nil {
		return ClassBypass
	}
	if hostMatches(u.Hostname(), c.BypassHosts) {
		return ClassBypass
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ClassBypass
	}
	if hostMatches(u.Hostname(), c.FontHosts) {
		return ClassFont
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return ClassDocument
	}
	if extMatches(u.Path, c.AssetExtensions) {
		return ClassStaticAsset
	}
	return ClassDefault
}

func hostMatches(host string, hosts []string) bool {
	for _, h := range hosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}

func extMatches(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
