package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/store"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]Item
	notify  chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{notify: make(chan struct{}, 16)}
}

func (r *batchRecorder) process(batch []Item) {
	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *batchRecorder) snapshot() [][]Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Item, len(r.batches))
	copy(out, r.batches)
	return out
}

func (r *batchRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
	}
}

func TestQueueCoalescesRapidEnqueues(t *testing.T) {
	rec := newBatchRecorder()
	q := NewQueue(150*time.Millisecond, rec.process)
	defer q.Close()

	for i := 0; i < 5; i++ {
		q.Enqueue(Item{Plugin: "shopify", Path: "products"})
		time.Sleep(5 * time.Millisecond) // inside the debounce window
	}

	rec.wait(t)
	batches := rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1 coalesced batch", len(batches))
	}
	if len(batches[0]) != 5 {
		t.Errorf("batch size = %d, want 5", len(batches[0]))
	}
}

func TestQueueSeparatesQuietPeriods(t *testing.T) {
	rec := newBatchRecorder()
	q := NewQueue(20*time.Millisecond, rec.process)
	defer q.Close()

	q.Enqueue(Item{Path: "a"})
	rec.wait(t)
	q.Enqueue(Item{Path: "b"})
	rec.wait(t)

	batches := rec.snapshot()
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if batches[0][0].Path != "a" || batches[1][0].Path != "b" {
		t.Errorf("batch contents = %v", batches)
	}
}

func TestQueueEnqueueDuringProcessingKeepsDebounce(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	rec := newBatchRecorder()
	q := NewQueue(150*time.Millisecond, func(batch []Item) {
		if len(rec.snapshot()) == 0 {
			close(started)
			<-release
		}
		rec.process(batch)
	})
	defer q.Close()

	q.Enqueue(Item{Path: "a"})
	q.Flush()
	<-started

	// Lands mid-batch; its debounce fire gets deferred.
	q.Enqueue(Item{Path: "b"})
	time.Sleep(200 * time.Millisecond)
	close(release)
	rec.wait(t)

	// The second item must wait out its own quiet period after the
	// first batch ends, not ride out immediately.
	time.Sleep(30 * time.Millisecond)
	if batches := rec.snapshot(); len(batches) != 1 {
		t.Fatalf("batches = %d, second batch skipped its debounce window", len(batches))
	}

	rec.wait(t)
	batches := rec.snapshot()
	if len(batches) != 2 || batches[1][0].Path != "b" {
		t.Errorf("batches = %v", batches)
	}
}

func TestQueueFlushBypassesDebounce(t *testing.T) {
	rec := newBatchRecorder()
	q := NewQueue(time.Hour, rec.process)
	defer q.Close()

	q.Enqueue(Item{Path: "a"})
	q.Flush()

	rec.wait(t)
	if q.Pending() != 0 {
		t.Errorf("Pending = %d after flush", q.Pending())
	}
}

func TestQueueCloseDropsPending(t *testing.T) {
	rec := newBatchRecorder()
	q := NewQueue(time.Hour, rec.process)

	q.Enqueue(Item{Path: "a"})
	q.Close()
	q.Flush()

	select {
	case <-rec.notify:
		t.Fatal("closed queue still processed a batch")
	case <-time.After(50 * time.Millisecond):
	}
}

func newDispatcherServer(t *testing.T, reg *Registry) (*httptest.Server, *batchRecorder) {
	t.Helper()
	rec := newBatchRecorder()
	q := NewQueue(10*time.Millisecond, rec.process)
	t.Cleanup(q.Close)

	mux := http.NewServeMux()
	mux.Handle(Prefix, NewDispatcher(reg, q))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestDispatcherQueuesValidDelivery(t *testing.T) {
	reg := NewRegistry()
	reg.Register("shopify", Handler{Path: "products", Handle: func(HandlerContext) error { return nil }})
	srv, rec := newDispatcherServer(t, reg)

	resp := postJSON(t, srv.URL+"/_webhooks/shopify/products", `{"id":"p-1"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out map[string]bool
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if !out["queued"] {
		t.Errorf("body = %v, want queued:true", out)
	}

	rec.wait(t)
	batch := rec.snapshot()[0]
	if batch[0].Plugin != "shopify" || batch[0].Path != "products" {
		t.Errorf("queued item = %+v", batch[0])
	}
	if batch[0].Body["id"] != "p-1" {
		t.Errorf("body = %v", batch[0].Body)
	}
}

func TestDispatcherRejections(t *testing.T) {
	reg := NewRegistry()
	reg.Register("shopify", Handler{
		Path:   "products",
		Handle: func(HandlerContext) error { return nil },
		VerifySignature: func(r *http.Request, _ []byte) bool {
			return r.Header.Get("X-Signature") == "valid"
		},
	})
	srv, _ := newDispatcherServer(t, reg)

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/_webhooks/shopify/products")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})

	t.Run("unknown plugin", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/_webhooks/nobody/products", `{}`)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/_webhooks/shopify", `{}`)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/_webhooks/shopify/products", `not json`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		var out map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out["error"] != "Invalid JSON body" {
			t.Errorf("error = %q", out["error"])
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/_webhooks/shopify/products", `{}`)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("good signature", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/_webhooks/shopify/products",
			bytes.NewBufferString(`{}`))
		req.Header.Set("X-Signature", "valid")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("status = %d, want 202", resp.StatusCode)
		}
	})
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	plugins []string
}

func (f *fakeBroadcaster) BroadcastWebhook(plugin string, _ map[string]any, _ http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plugins = append(f.plugins, plugin)
}

func TestProcessorRunsHandlersAndBroadcasts(t *testing.T) {
	reg := NewRegistry()
	var handled []string
	var mu sync.Mutex
	reg.Register("shopify", Handler{Path: "products", Handle: func(ctx HandlerContext) error {
		mu.Lock()
		handled = append(handled, ctx.Path)
		mu.Unlock()
		return nil
	}})

	bc := &fakeBroadcaster{}
	process := NewProcessor(reg, actions.Context{Store: store.New()}, bc)
	process([]Item{
		{Plugin: "shopify", Path: "products", Body: map[string]any{"id": "p-1"}},
		{Plugin: "gone", Path: "x"}, // unregistered: skipped, batch continues
		{Plugin: "shopify", Path: "products", Body: map[string]any{"id": "p-2"}},
	})

	if len(handled) != 2 {
		t.Errorf("handled = %v, want 2 deliveries", handled)
	}
	if len(bc.plugins) != 2 {
		t.Errorf("broadcasts = %v, want 2", bc.plugins)
	}
}

func TestProcessorHandlerErrorDoesNotAbortBatch(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register("p", Handler{Path: "fail", Handle: func(HandlerContext) error {
		calls++
		return errors.New("handler failed")
	}})
	reg.Register("p", Handler{Path: "ok", Handle: func(HandlerContext) error {
		calls++
		return nil
	}})

	process := NewProcessor(reg, actions.Context{Store: store.New()}, nil)
	process([]Item{{Plugin: "p", Path: "fail"}, {Plugin: "p", Path: "ok"}})

	if calls != 2 {
		t.Errorf("calls = %d, want both handlers to run", calls)
	}
}
