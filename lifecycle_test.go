package strategycache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/strategy-cache/strategy-cache/identity"
	"github.com/strategy-cache/strategy-cache/store"
)

func testLifecycle(generation string, st store.Store) *Lifecycle {
	return NewLifecycle(generation, st, identity.NewKeyer(), zerolog.Nop())
}

func TestPrecachePartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok: " + r.URL.Path))
	}))
	defer server.Close()

	st := store.NewMemoryStore()
	lc := testLifecycle("v1", st)
	manifest := []string{
		server.URL + "/",
		server.URL + "/broken",
		server.URL + "/app.js",
	}
	lc.Precache(context.Background(), manifest)

	h := st.Open("precache-v1")
	keys, err := h.Keys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("Precache holds %d entries: %v", len(keys), keys)
	}
	if lc.State() != StateInstalled {
		t.Fatalf("State is %s", lc.State())
	}
}

func TestPrecacheAllFailuresStillSucceeds(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	lc := testLifecycle("v1", store.NewMemoryStore())
	lc.Precache(context.Background(), []string{url + "/a", url + "/b"})

	if lc.State() != StateInstalled {
		t.Fatalf("State is %s", lc.State())
	}
	select {
	case <-lc.Ready():
	default:
		t.Fatal("Readiness not signalled")
	}
}

func TestCutoverDeletesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedStore(t, st, "precache-v1", "a")
	seedStore(t, st, "runtime-v1", "b")
	seedStore(t, st, "runtime-v2", "c")

	lc := testLifecycle("v2", st)
	lc.Cutover(ctx)

	names, _ := st.ListNames(ctx)
	if len(names) != 1 || names[0] != "runtime-v2" {
		t.Fatalf("Stores after cutover: %v", names)
	}
	if lc.State() != StateActive {
		t.Fatalf("State is %s", lc.State())
	}
}

func TestCutoverIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seedStore(t, st, "runtime-v1", "a")
	seedStore(t, st, "runtime-v2", "b")

	lc := testLifecycle("v2", st)
	lc.Cutover(ctx)
	first, _ := st.ListNames(ctx)

	lc.Cutover(ctx)
	second, _ := st.ListNames(ctx)

	if len(first) != len(second) {
		t.Fatalf("Second cutover deleted stores: %v -> %v", first, second)
	}
}

func TestPrimeRuntimeStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("primed"))
	}))
	defer server.Close()

	st := store.NewMemoryStore()
	lc := testLifecycle("v1", st)
	lc.PrimeRuntimeStore(context.Background(), []string{server.URL + "/detail/1", server.URL + "/detail/2"})

	keys, err := st.Open("runtime-v1").Keys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("Runtime store holds %d entries: %v", len(keys), keys)
	}
}

func TestActivateForcesTransition(t *testing.T) {
	lc := testLifecycle("v1", store.NewMemoryStore())
	lc.Precache(context.Background(), nil)
	if lc.State() != StateInstalled {
		t.Fatalf("State is %s", lc.State())
	}
	lc.Activate()
	if lc.State() != StateActivating {
		t.Fatalf("State is %s", lc.State())
	}
	lc.Cutover(context.Background())
	if lc.State() != StateActive {
		t.Fatalf("State is %s", lc.State())
	}
}

func TestStoreNameIsGenerationQualified(t *testing.T) {
	lc := testLifecycle("v3", store.NewMemoryStore())
	if name := lc.StoreName(RolePrecache); name != "precache-v3" {
		t.Fatalf("Store name is %s", name)
	}
	if name := lc.StoreName(RoleRuntime); name != "runtime-v3" {
		t.Fatalf("Store name is %s", name)
	}
}

func seedStore(t *testing.T, st store.Store, name, key string) {
	t.Helper()
	rec := &store.Record{StatusCode: 200, Header: http.Header{}, Body: []byte("x")}
	if err := st.Open(name).Put(context.Background(), key, rec); err != nil {
		t.Fatal(err)
	}
}
