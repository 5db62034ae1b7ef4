package strategycache

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/strategy-cache/strategy-cache/identity"
	"github.com/strategy-cache/strategy-cache/store"
)

// strategies holds the caching algorithms and the network client they share.
// Executors never return an error: every failure path ends in a stored
// response, the offline document, or a synthesized 503.
type strategies struct {
	client *http.Client
	keyer  identity.Keyer
	log    zerolog.Logger
	// Deduplicates concurrent background revalidations per key.
	group singleflight.Group
	// Caps concurrent background revalidations so detached tasks cannot
	// grow without bound.
	revalidations *semaphore.Weighted
}

func newStrategies(keyer identity.Keyer, log zerolog.Logger, maxRevalidations int64) *strategies {
	if maxRevalidations <= 0 {
		maxRevalidations = 32
	}
	return &strategies{
		client: &http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		keyer:         keyer,
		log:           log,
		revalidations: semaphore.NewWeighted(maxRevalidations),
	}
}

// cacheFirst serves from the store and only fetches on a miss.
// A successful fetch is stored for next time; a failed or non-2xx fetch
// yields a synthesized 503, never the raw error.
func (s *strategies) cacheFirst(ctx context.Context, r *http.Request, h store.Handle) *http.Response {
	key := s.keyer.Key(r)
	if rec, ok, err := h.Get(ctx, key); err != nil {
		s.log.Error().Err(err).Str("store", h.Name()).Msg("Could not read from store")
	} else if ok {
		return rec.Response()
	}
	res, err := s.fetch(ctx, r)
	if err != nil {
		s.log.Debug().Err(err).Str("url", identity.RequestURL(r)).Msg("Fetch failed")
		return serviceUnavailable()
	}
	if !isSuccess(res.StatusCode) {
		res.Body.Close()
		return serviceUnavailable()
	}
	return s.storeCopy(ctx, h, key, res)
}

// fallbackFunc produces a last-resort response after both the network
// and the store have failed. Returning nil falls through to the
// synthesized 503.
type fallbackFunc func(ctx context.Context, r *http.Request) *http.Response

// networkFirst fetches and stores, falling back to the store on network
// failure. On a double miss the fallback decides; without one the caller
// gets a synthesized 503.
func (s *strategies) networkFirst(ctx context.Context, r *http.Request, h store.Handle, fallback fallbackFunc) *http.Response {
	key := s.keyer.Key(r)
	res, err := s.fetch(ctx, r)
	if err == nil {
		if isSuccess(res.StatusCode) {
			return s.storeCopy(ctx, h, key, res)
		}
		return res
	}
	s.log.Debug().Err(err).Str("url", identity.RequestURL(r)).Msg("Fetch failed, trying store")
	if rec, ok, err := h.Get(ctx, key); err != nil {
		s.log.Error().Err(err).Str("store", h.Name()).Msg("Could not read from store")
	} else if ok {
		return rec.Response()
	}
	if fallback != nil {
		if res := fallback(ctx, r); res != nil {
			return res
		}
	}
	return serviceUnavailable()
}

// staleWhileRevalidate serves a store hit immediately and refreshes the
// entry in the background. The revalidation is best-effort: its outcome
// never changes or delays the response already chosen.
func (s *strategies) staleWhileRevalidate(ctx context.Context, r *http.Request, h store.Handle) *http.Response {
	key := s.keyer.Key(r)
	if rec, ok, err := h.Get(ctx, key); err != nil {
		s.log.Error().Err(err).Str("store", h.Name()).Msg("Could not read from store")
	} else if ok {
		s.revalidate(r, h, key)
		return rec.Response()
	}
	res, err := s.fetch(ctx, r)
	if err != nil {
		s.log.Debug().Err(err).Str("url", identity.RequestURL(r)).Msg("Fetch failed")
		return serviceUnavailable()
	}
	if isSuccess(res.StatusCode) {
		return s.storeCopy(ctx, h, key, res)
	}
	return res
}

// revalidate refreshes a store entry in a detached task.
// Revalidations are deduplicated per key and capped in number;
// when the cap is reached the refresh is simply skipped.
func (s *strategies) revalidate(r *http.Request, h store.Handle, key string) {
	if !s.revalidations.TryAcquire(1) {
		s.log.Trace().Str("key", key).Msg("Revalidation cap reached, skipping")
		return
	}
	// The response has already been decided; the refresh runs on its own
	// context and only ever updates the store.
	req := r.Clone(context.Background())
	go func() {
		defer s.revalidations.Release(1)
		_, _, _ = s.group.Do(key, func() (interface{}, error) {
			res, err := s.fetch(req.Context(), req)
			if err != nil {
				s.log.Trace().Err(err).Str("key", key).Msg("Revalidation fetch failed")
				return nil, nil
			}
			if isSuccess(res.StatusCode) {
				s.storeCopy(req.Context(), h, key, res)
			} else {
				res.Body.Close()
			}
			return nil, nil
		})
	}()
}

// fetch performs the network request for an intercepted request.
// A fresh outbound request is built so server-side fields like RequestURI
// do not leak into the client call.
func (s *strategies) fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, identity.RequestURL(r), r.Body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	return s.client.Do(req)
}

// storeCopy writes a copy of the response to the store and returns the
// response with its body intact. Store failures are logged, not surfaced:
// the caller still gets the network response. Callers must only pass 2xx
// responses; error responses are never cached.
func (s *strategies) storeCopy(ctx context.Context, h store.Handle, key string, res *http.Response) *http.Response {
	rec, err := store.NewRecord(res)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Could not copy response")
		return res
	}
	if err := h.Put(ctx, key, rec); err != nil {
		s.log.Error().Err(err).Str("store", h.Name()).Str("key", key).Msg("Could not write to store")
	}
	return res
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
