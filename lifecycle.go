package strategycache

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/strategy-cache/strategy-cache/identity"
	"github.com/strategy-cache/strategy-cache/store"
)

// Store roles. Stores are only ever addressed by the generation-qualified
// name built in StoreName, never by a bare role.
const (
	RolePrecache = "precache"
	RoleRuntime  = "runtime"
)

// State is the lifecycle state of an engine instance.
type State int

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	default:
		return "active"
	}
}

// Lifecycle owns the current store generation: which named stores belong
// to it, how they are populated at startup, and when superseded
// generations are evicted. There is exactly one current generation per
// Lifecycle; everything else it finds in the store is stale.
type Lifecycle struct {
	generation string
	store      store.Store
	keyer      identity.Keyer
	client     *http.Client
	log        zerolog.Logger

	mutex sync.Mutex
	state State
	ready chan struct{}
}

func NewLifecycle(generation string, st store.Store, keyer identity.Keyer, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		generation: generation,
		store:      st,
		keyer:      keyer,
		client:     &http.Client{},
		log:        log.With().Str("generation", generation).Logger(),
		state:      StateInstalling,
		ready:      make(chan struct{}),
	}
}

// Generation returns the current generation tag.
func (l *Lifecycle) Generation() string {
	return l.generation
}

// StoreName returns the generation-qualified store name for a role.
func (l *Lifecycle) StoreName(role string) string {
	return role + "-" + l.generation
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.state
}

// Ready returns a channel that is closed once precaching has completed
// and the instance is ready to take over serving.
func (l *Lifecycle) Ready() <-chan struct{} {
	return l.ready
}

// Precache populates the precache store from the manifest.
// Entries are independent: each failure is logged and swallowed, so the
// operation succeeds even if every fetch fails. On completion the state
// moves to installed and readiness is signalled without waiting for any
// previous instance to drain.
func (l *Lifecycle) Precache(ctx context.Context, manifest []string) {
	l.fetchInto(ctx, l.StoreName(RolePrecache), manifest)
	l.mutex.Lock()
	if l.state == StateInstalling {
		l.state = StateInstalled
		close(l.ready)
	}
	l.mutex.Unlock()
	l.log.Info().Int("entries", len(manifest)).Msg("Precache complete")
}

// Activate forces the transition from installed to activating,
// bypassing any wait for existing instances.
func (l *Lifecycle) Activate() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.state == StateInstalled {
		l.state = StateActivating
	}
}

// Cutover deletes every store belonging to a superseded generation and
// moves the instance to active. Enumeration and deletion failures are
// unexpected but non-fatal: they are logged and the cutover completes
// best-effort. Calling Cutover again with no new generation is a no-op.
func (l *Lifecycle) Cutover(ctx context.Context) {
	l.mutex.Lock()
	if l.state == StateInstalled {
		l.state = StateActivating
	}
	l.mutex.Unlock()

	names, err := l.store.ListNames(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("Could not list stores during cutover")
	}
	deleted := 0
	for _, name := range names {
		if generationOf(name) == l.generation {
			continue
		}
		if err := l.store.Delete(ctx, name); err != nil {
			l.log.Error().Err(err).Str("store", name).Msg("Could not delete stale store")
			continue
		}
		deleted++
	}

	l.mutex.Lock()
	l.state = StateActive
	l.mutex.Unlock()
	l.log.Info().Int("deleted", deleted).Msg("Cutover complete")
}

// PrimeRuntimeStore fetches and stores the given URLs under the runtime
// store name, with the same partial-failure tolerance as Precache.
func (l *Lifecycle) PrimeRuntimeStore(ctx context.Context, urls []string) {
	l.fetchInto(ctx, l.StoreName(RoleRuntime), urls)
}

// fetchInto fetches each URL and stores successful responses under the
// named store. Failures never abort the batch: partial success is
// acceptable and expected, e.g. for cross-origin entries.
func (l *Lifecycle) fetchInto(ctx context.Context, name string, urls []string) {
	handle := l.store.Open(name)
	for _, u := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			l.log.Warn().Err(err).Str("url", u).Msg("Skipping invalid URL")
			continue
		}
		res, err := l.client.Do(req)
		if err != nil {
			l.log.Warn().Err(err).Str("url", u).Msg("Could not fetch")
			continue
		}
		if !isSuccess(res.StatusCode) {
			l.log.Warn().Int("status", res.StatusCode).Str("url", u).Msg("Not storing error response")
			res.Body.Close()
			continue
		}
		rec, err := store.NewRecord(res)
		res.Body.Close()
		if err != nil {
			l.log.Warn().Err(err).Str("url", u).Msg("Could not read response")
			continue
		}
		if err := handle.Put(ctx, l.keyer.Key(req), rec); err != nil {
			l.log.Warn().Err(err).Str("url", u).Msg("Could not store")
		}
	}
}

// generationOf extracts the generation tag from a store name.
// A write racing a cutover may recreate a just-deleted store; the
// recreated store carries a stale generation and is removed by the next
// cutover (see store.Store.Open).
func generationOf(name string) string {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}
