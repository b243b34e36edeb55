package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowcache/flowcache"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server over a fresh store and exposes it via
// httptest without binding a real port.
func newTestServer(t *testing.T) (*httptest.Server, *flowcache.Store[string, Entry]) {
	t.Helper()

	cache := flowcache.NewMemoryCache(EntryKey)
	store, err := flowcache.New(EntryKey,
		flowcache.WithCache[string, Entry](cache),
		flowcache.WithLogger[string, Entry](testLogger()),
	)
	if err != nil {
		t.Fatalf("flowcache.New() error = %v", err)
	}

	srv := NewServer(store, cache, 0, nil, "", testLogger())
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	return ts, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return resp
}

func getEntries(t *testing.T, ts *httptest.Server) []Entry {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/entries")
	if err != nil {
		t.Fatalf("GET /api/entries error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/entries status = %d, want 200", resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	return entries
}

func TestServer_StoreAndSnapshot(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/entries", Entry{
		Key:  "checkout-v2",
		Data: map[string]any{"enabled": "true"},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d, want 200", resp.StatusCode)
	}

	var stored Entry
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatalf("decode stored entry: %v", err)
	}
	if stored.ID == "" {
		t.Error("stored entry has empty ID, want server-assigned write ID")
	}
	if stored.UpdatedAt.IsZero() {
		t.Error("stored entry has zero UpdatedAt")
	}

	entries := getEntries(t, ts)
	if len(entries) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(entries))
	}
	if entries[0].Key != "checkout-v2" {
		t.Errorf("snapshot entry key = %q, want %q", entries[0].Key, "checkout-v2")
	}
}

func TestServer_StoreMissingKey(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/entries", Entry{Data: map[string]any{"x": 1}})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST without key status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_StoreInvalidJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/entries", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST invalid JSON status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_GetSingleEntry(t *testing.T) {
	ts, store := newTestServer(t)

	store.StoreSingular(Entry{ID: "w1", Key: "k1", UpdatedAt: time.Now()})

	resp, err := http.Get(ts.URL + "/api/entries/k1")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/entries/k1 status = %d, want 200", resp.StatusCode)
	}

	var entry Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Key != "k1" {
		t.Errorf("entry key = %q, want %q", entry.Key, "k1")
	}
}

func TestServer_GetMissingEntry(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/entries/nope")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET missing entry status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_Batch(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/entries/batch", []Entry{
		{Key: "k1"},
		{Key: "k2"},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST batch status = %d, want 200", resp.StatusCode)
	}

	var result map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode batch response: %v", err)
	}
	if result["stored"] != 2 {
		t.Errorf("stored = %d, want 2", result["stored"])
	}

	if entries := getEntries(t, ts); len(entries) != 2 {
		t.Errorf("snapshot has %d entries after batch, want 2", len(entries))
	}
}

func TestServer_BatchRejectsMissingKey(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/entries/batch", []Entry{{Key: "k1"}, {}})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("batch with empty key status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_ReplaceAll(t *testing.T) {
	ts, store := newTestServer(t)

	store.StoreAll([]Entry{{ID: "w1", Key: "old"}})

	data, _ := json.Marshal([]Entry{{Key: "new"}})
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/entries", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewRequest error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
	}

	entries := getEntries(t, ts)
	if len(entries) != 1 || entries[0].Key != "new" {
		t.Errorf("snapshot after replace = %v, want only key %q", entries, "new")
	}

	// the replaced key is gone
	missing, err := http.Get(ts.URL + "/api/entries/old")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("GET replaced-away key status = %d, want 404", missing.StatusCode)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/entries"},
		{http.MethodGet, "/api/entries/batch"},
		{http.MethodPost, "/api/entries/k1"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatalf("NewRequest error = %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want 405", resp.StatusCode)
			}
		})
	}
}

// sseEvents opens an SSE stream and forwards each event payload on the
// returned channel until the response body is closed.
func sseEvents(t *testing.T, url string) (<-chan string, func()) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		resp.Body.Close()
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	events := make(chan string)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if payload, ok := strings.CutPrefix(line, "data: "); ok {
				events <- payload
			}
		}
	}()

	return events, func() { resp.Body.Close() }
}

func nextEvent(t *testing.T, events <-chan string) string {
	t.Helper()
	select {
	case payload, ok := <-events:
		if !ok {
			t.Fatal("SSE stream closed unexpectedly")
		}
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SSE event")
	}
	return ""
}

func TestServer_StreamSnapshotThenTail(t *testing.T) {
	ts, store := newTestServer(t)

	store.StoreSingular(Entry{ID: "w1", Key: "k1", UpdatedAt: time.Now()})

	events, stop := sseEvents(t, ts.URL+"/api/stream")
	defer stop()

	// first event is the snapshot at subscribe time
	var snapshot []Entry
	if err := json.Unmarshal([]byte(nextEvent(t, events)), &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot event: %v", err)
	}
	if len(snapshot) != 1 || snapshot[0].Key != "k1" {
		t.Fatalf("snapshot event = %v, want [k1]", snapshot)
	}

	// a write produces a live event with the updated collection
	store.StoreSingular(Entry{ID: "w2", Key: "k2", UpdatedAt: time.Now()})

	var updated []Entry
	if err := json.Unmarshal([]byte(nextEvent(t, events)), &updated); err != nil {
		t.Fatalf("unmarshal live event: %v", err)
	}
	if len(updated) != 2 {
		t.Errorf("live event has %d entries, want 2", len(updated))
	}
}

func TestServer_StreamEmptyStoreEmitsNull(t *testing.T) {
	ts, _ := newTestServer(t)

	events, stop := sseEvents(t, ts.URL+"/api/stream")
	defer stop()

	if payload := nextEvent(t, events); payload != "null" {
		t.Errorf("snapshot event for empty store = %q, want null", payload)
	}
}

func TestServer_StreamSingleKey(t *testing.T) {
	ts, store := newTestServer(t)

	events, stop := sseEvents(t, ts.URL+"/api/stream?key=k1")
	defer stop()

	// nothing cached for k1 yet
	if payload := nextEvent(t, events); payload != "null" {
		t.Fatalf("snapshot event for absent key = %q, want null", payload)
	}

	store.StoreSingular(Entry{ID: "w1", Key: "k1", UpdatedAt: time.Now()})

	var entry Entry
	if err := json.Unmarshal([]byte(nextEvent(t, events)), &entry); err != nil {
		t.Fatalf("unmarshal live event: %v", err)
	}
	if entry.Key != "k1" {
		t.Errorf("live event key = %q, want %q", entry.Key, "k1")
	}

	// writes to other keys do not reach this stream
	store.StoreSingular(Entry{ID: "w2", Key: "other", UpdatedAt: time.Now()})
	select {
	case payload := <-events:
		t.Errorf("received event for unrelated key: %s", payload)
	case <-time.After(100 * time.Millisecond):
		// expected: silence
	}
}

func TestServer_StreamObservesReplaceAll(t *testing.T) {
	ts, store := newTestServer(t)

	store.StoreAll([]Entry{{ID: "w1", Key: "k1"}})

	events, stop := sseEvents(t, ts.URL+"/api/stream?key=k1")
	defer stop()

	if payload := nextEvent(t, events); payload == "null" {
		t.Fatal("snapshot event = null, want the cached entry")
	}

	store.ReplaceAll([]Entry{{ID: "w2", Key: "k2"}})

	// k1 was replaced away; its stream reports the absence
	if payload := nextEvent(t, events); payload != "null" {
		t.Errorf("event after ReplaceAll = %q, want null", payload)
	}
}

func TestServer_IndexWithoutAssets(t *testing.T) {
	ts, _ := newTestServer(t)

	// no assets registered, so the root path has no handler
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET / without assets status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_RunAndShutdown(t *testing.T) {
	cache := flowcache.NewMemoryCache(EntryKey)
	store, err := flowcache.New(EntryKey,
		flowcache.WithCache[string, Entry](cache),
		flowcache.WithLogger[string, Entry](testLogger()),
	)
	if err != nil {
		t.Fatalf("flowcache.New() error = %v", err)
	}

	srv := NewServer(store, cache, 19377, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	// wait for the listener to come up
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://localhost:19377/api/entries")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never became reachable: %v", err)
	}
	resp.Body.Close()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned error on graceful shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestServer_RunPortConflict(t *testing.T) {
	cache := flowcache.NewMemoryCache(EntryKey)
	store, err := flowcache.New(EntryKey,
		flowcache.WithCache[string, Entry](cache),
		flowcache.WithLogger[string, Entry](testLogger()),
	)
	if err != nil {
		t.Fatalf("flowcache.New() error = %v", err)
	}

	first := NewServer(store, cache, 19378, nil, "", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()

	// wait for the first server to hold the port
	var reachable bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get("http://localhost:19378/api/entries")
		if err == nil {
			resp.Body.Close()
			reachable = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !reachable {
		t.Fatal("first server never became reachable")
	}

	second := NewServer(store, cache, 19378, nil, "", testLogger())
	if err := second.Run(ctx); err == nil {
		t.Error("Run() on an occupied port returned nil, want bind error")
	} else if !strings.Contains(err.Error(), fmt.Sprint(19378)) {
		t.Errorf("bind error %q does not mention the port", err)
	}

	cancel()
	<-done
}
