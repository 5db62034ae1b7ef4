package strategycache

import (
	"bytes"
	"io"
	"net/http"
)

// offlineDocument is the last-resort response body for navigations.
// It is self-contained: no external resource references.
const offlineDocument = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Offline</title>
<style>
body { font-family: sans-serif; margin: 4rem auto; max-width: 32rem; text-align: center; }
h1 { font-size: 1.5rem; }
</style>
</head>
<body>
<h1>You are offline</h1>
<p>This page could not be reached. Check your connection and try again.</p>
</body>
</html>
`

// offlineResponse produces the offline fallback document.
// The status is a success so a browser renders it. Deterministic, no side effects.
func offlineResponse() *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(offlineDocument))),
		ContentLength: int64(len(offlineDocument)),
	}
}

// serviceUnavailable synthesizes the response returned when a strategy
// has exhausted both the store and the network.
func serviceUnavailable() *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("X-Served-By", "strategy-cache")
	body := "offline\n"
	return &http.Response{
		StatusCode:    http.StatusServiceUnavailable,
		Status:        "503 Service Unavailable",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
	}
}
