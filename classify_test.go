package strategycache

import (
	"net/http"
	"testing"
)

func classifyURL(t *testing.T, c Classifier, url string, accept string) Class {
	t.Helper()
	r, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if accept != "" {
		r.Header.Set("Accept", accept)
	}
	return c.Classify(r)
}

func TestClassifyOrdering(t *testing.T) {
	c := NewClassifier("api.example.com")
	tests := []struct {
		url    string
		accept string
		want   Class
	}{
		{"http://api.example.com/v1/items", "application/json", ClassBypass},
		// bypass wins even for a document request to the api host
		{"http://api.example.com/", "text/html,application/xhtml+xml", ClassBypass},
		{"http://fonts.gstatic.com/s/font.woff2", "", ClassFont},
		{"http://fonts.googleapis.com/css2?family=Roboto", "text/css,*/*;q=0.1", ClassFont},
		{"http://example.com/", "text/html,application/xhtml+xml", ClassDocument},
		// document accept wins over the asset extension
		{"http://example.com/page.js", "text/html", ClassDocument},
		{"http://example.com/app.js", "*/*", ClassStaticAsset},
		{"http://example.com/style.css", "text/css,*/*;q=0.1", ClassStaticAsset},
		{"http://example.com/logo.png", "image/webp,*/*", ClassDefault},
		{"http://example.com/data", "application/json", ClassDefault},
	}
	for _, tt := range tests {
		if got := classifyURL(t, c, tt.url, tt.accept); got != tt.want {
			t.Errorf("Classify(%s, accept=%q) = %s, want %s", tt.url, tt.accept, got, tt.want)
		}
	}
}

func TestClassifyNonFetchableScheme(t *testing.T) {
	c := NewClassifier()
	r, err := http.NewRequest("GET", "chrome-extension://abcdef/script.js", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Classify(r); got != ClassBypass {
		t.Fatalf("Classify = %s, want bypass", got)
	}
}

func TestClassifyServerRequest(t *testing.T) {
	// requests received by a server carry a relative URL plus Host
	c := NewClassifier("api.example.com")
	r, _ := http.NewRequest("GET", "/app.css", nil)
	r.Host = "example.com"
	if got := c.Classify(r); got != ClassStaticAsset {
		t.Fatalf("Classify = %s, want static-asset", got)
	}
	r.Host = "api.example.com"
	if got := c.Classify(r); got != ClassBypass {
		t.Fatalf("Classify = %s, want bypass", got)
	}
}
