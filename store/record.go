package store

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Record is a stored response.
// The body is held in full; this engine only caches complete responses.
type Record struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// The value of the clock when the response was stored.
	// Needed for age reporting.
	StoredAt time.Time
}

// NewRecord copies the given response into a Record.
// The response body is consumed and replaced with an equivalent reader,
// so the response stays usable by the caller.
func NewRecord(res *http.Response) (*Record, error) {
	var body []byte
	if res.Body != nil {
		var err error
		body, err = io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("could not read response body: %w", err)
		}
		res.Body = io.NopCloser(bytes.NewReader(body))
	}
	return &Record{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now(),
	}, nil
}

// Response revives the record as an *http.Response.
// Each call returns a response with its own body reader.
func (r *Record) Response() *http.Response {
	return &http.Response{
		StatusCode:    r.StatusCode,
		Status:        fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
	}
}

func (r *Record) marshal() ([]byte, error) {
	return msgpack.Marshal(r)
}

func unmarshalRecord(b []byte) (*Record, error) {
	var rec Record
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("could not unmarshal record: %w", err)
	}
	return &rec, nil
}
