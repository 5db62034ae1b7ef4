package store

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	// a uniquely named memory db keeps tests isolated from each other
	dbName := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(dbName),
	}
}

func testRecord(body string) *Record {
	res := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	rec, err := NewRecord(res)
	if err != nil {
		panic(err)
	}
	return rec
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := st.Open("runtime-v1")
			if err := h.Put(ctx, "key", testRecord("Hello world")); err != nil {
				t.Fatal(err)
			}
			rec, ok, err := h.Get(ctx, "key")
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			res := rec.Response()
			body, _ := io.ReadAll(res.Body)
			if string(body) != "Hello world" {
				t.Fatalf("Body is %s", body)
			}
			if res.StatusCode != 200 {
				t.Fatalf("Status is %d", res.StatusCode)
			}
			if res.Header.Get("Content-Type") != "text/plain" {
				t.Fatalf("Header is %v", res.Header)
			}
		})
	}
}

func TestGetMiss(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			h := st.Open("runtime-v1")
			_, ok, err := h.Get(context.Background(), "missing")
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Fatal("Expected miss")
			}
		})
	}
}

func TestListNamesAndDelete(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st.Open("precache-v1").Put(ctx, "a", testRecord("a"))
			st.Open("runtime-v1").Put(ctx, "b", testRecord("b"))
			names, err := st.ListNames(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(names) != 2 {
				t.Fatalf("Names are %v", names)
			}
			if err := st.Delete(ctx, "precache-v1"); err != nil {
				t.Fatal(err)
			}
			names, _ = st.ListNames(ctx)
			if len(names) != 1 || names[0] != "runtime-v1" {
				t.Fatalf("Names after delete are %v", names)
			}
		})
	}
}

func TestPutRecreatesDeletedStore(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := st.Open("runtime-v1")
			h.Put(ctx, "a", testRecord("a"))
			if err := st.Delete(ctx, "runtime-v1"); err != nil {
				t.Fatal(err)
			}
			// a write through the stale handle recreates the store
			if err := h.Put(ctx, "b", testRecord("b")); err != nil {
				t.Fatal(err)
			}
			names, _ := st.ListNames(ctx)
			if len(names) != 1 || names[0] != "runtime-v1" {
				t.Fatalf("Names are %v", names)
			}
			keys, err := h.Keys(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 1 || keys[0] != "b" {
				t.Fatalf("Keys are %v", keys)
			}
		})
	}
}

func TestDeleteKey(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := st.Open("runtime-v1")
			h.Put(ctx, "a", testRecord("a"))
			if err := h.Delete(ctx, "a"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := h.Get(ctx, "a"); ok {
				t.Fatal("Expected miss after delete")
			}
		})
	}
}

func TestLastWriterWins(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := st.Open("runtime-v1")
			h.Put(ctx, "a", testRecord("first"))
			h.Put(ctx, "a", testRecord("second"))
			rec, ok, _ := h.Get(ctx, "a")
			if !ok {
				t.Fatal("Expected hit")
			}
			body, _ := io.ReadAll(rec.Response().Body)
			if string(body) != "second" {
				t.Fatalf("Body is %s", body)
			}
		})
	}
}

func TestRecordKeepsResponseUsable(t *testing.T) {
	res := &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("Hello world")),
	}
	if _, err := NewRecord(res); err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil || string(body) != "Hello world" {
		t.Fatalf("Body is %s (%v)", body, err)
	}
}
