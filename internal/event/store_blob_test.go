package event

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/funnelworks/campaign-logger/pkg/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBlobServer is an in-memory object store speaking the same HTTP
// surface as pkg/blob expects: PUT to store, GET / with a prefix query to
// list, GET <pathname> to fetch.
type fakeBlobServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	srv     *httptest.Server
	failPut bool
}

func newFakeBlobServer(t *testing.T) *fakeBlobServer {
	t.Helper()
	f := &fakeBlobServer{objects: make(map[string][]byte)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBlobServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut:
		if f.failPut {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		pathname := strings.TrimPrefix(r.URL.Path, "/")
		body, _ := io.ReadAll(r.Body)
		f.objects[pathname] = body
		_ = json.NewEncoder(w).Encode(blob.Object{
			URL:        f.srv.URL + "/" + pathname,
			Pathname:   pathname,
			UploadedAt: "2026-08-29T10:30:00.000Z",
		})

	case r.Method == http.MethodGet && r.URL.Path == "/":
		prefix := r.URL.Query().Get("prefix")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var keys []string
		for key := range f.objects {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		if limit > 0 && len(keys) > limit {
			keys = keys[:limit]
		}

		blobs := make([]blob.Object, 0, len(keys))
		for _, key := range keys {
			blobs = append(blobs, blob.Object{
				URL:        f.srv.URL + "/" + key,
				Pathname:   key,
				UploadedAt: "2026-08-29T10:30:00.000Z",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"blobs": blobs})

	case r.Method == http.MethodGet:
		body, ok := f.objects[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)

	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func (f *fakeBlobServer) put(key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

func (f *fakeBlobServer) store(t *testing.T) *BlobStore {
	t.Helper()
	client := blob.NewClient(blob.Config{BaseURL: f.srv.URL, Token: "test-token", Timeout: time.Second}, zap.NewNop())
	return NewBlobStore(client, zap.NewNop())
}

func TestBlobStoreObjectKey(t *testing.T) {
	f := newFakeBlobServer(t)
	store := f.store(t)
	store.now = func() time.Time {
		return time.Date(2026, 8, 29, 10, 30, 0, 123e6, time.UTC)
	}

	rec := Normalize(Payload{
		Event:     strPtr("page2_select"),
		SessionID: strPtr("abc-1"),
		Page:      strPtr("page2"),
	}, RequestMeta{IP: "198.51.100.7"}, store.now())

	receipt, err := store.Store(context.Background(), "page2", rec)
	require.NoError(t, err)
	assert.True(t, receipt.Confirmed)
	assert.Equal(t, "blob", receipt.Backend)

	key := "logs/page2/2026-08-29T10-30-00-123Z-abc-1.json"
	require.Contains(t, f.objects, key)
	assert.Equal(t, f.srv.URL+"/"+key, receipt.Location)

	// Object bodies are pretty-printed.
	assert.True(t, strings.HasPrefix(string(f.objects[key]), "{\n  "))

	var stored Record
	require.NoError(t, json.Unmarshal(f.objects[key], &stored))
	assert.Equal(t, "page2_select", *stored.Event)
	assert.Equal(t, "198.51.100.7", stored.IP)
}

func TestBlobStoreObjectKeyWithoutSession(t *testing.T) {
	f := newFakeBlobServer(t)
	store := f.store(t)
	store.now = func() time.Time {
		return time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	}

	rec := Normalize(Payload{Event: strPtr("page1_view")}, RequestMeta{}, store.now())
	_, err := store.Store(context.Background(), "page1", rec)
	require.NoError(t, err)

	assert.Contains(t, f.objects, "logs/page1/2026-08-29T10-30-00-000Z-unknown.json")
}

func TestBlobStoreSurfacesPutFailure(t *testing.T) {
	f := newFakeBlobServer(t)
	f.failPut = true
	store := f.store(t)

	rec := Normalize(Payload{Event: strPtr("page1_view")}, RequestMeta{}, time.Now())
	_, err := store.Store(context.Background(), "page1", rec)
	assert.ErrorIs(t, err, ErrStoreFailed)
}

func TestBlobStoreListFiltersByPage(t *testing.T) {
	f := newFakeBlobServer(t)
	store := f.store(t)

	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	page1 := Normalize(Payload{Event: strPtr("page1_view"), Page: strPtr("page1"), SessionID: strPtr("s1")}, RequestMeta{}, now)
	page2 := Normalize(Payload{Event: strPtr("page2_select"), Page: strPtr("page2"), SessionID: strPtr("s2")}, RequestMeta{}, now)

	_, err := store.Store(context.Background(), "page1", page1)
	require.NoError(t, err)
	_, err = store.Store(context.Background(), "page2", page2)
	require.NoError(t, err)

	records, err := store.List(context.Background(), "page2", 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "page2_select", *records[0].Event)
	assert.NotEmpty(t, records[0].BlobURL)
	assert.NotEmpty(t, records[0].UploadedAt)

	all, err := store.List(context.Background(), "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBlobStoreListHonorsLimit(t *testing.T) {
	f := newFakeBlobServer(t)
	store := f.store(t)

	for i := 0; i < 7; i++ {
		session := "s" + strconv.Itoa(i)
		rec := Normalize(Payload{Event: strPtr("page1_view"), SessionID: &session}, RequestMeta{}, time.Now())
		store.now = func() time.Time {
			return time.Date(2026, 8, 29, 10, 0, i, 0, time.UTC)
		}
		_, err := store.Store(context.Background(), "page1", rec)
		require.NoError(t, err)
	}

	records, err := store.List(context.Background(), "page1", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestBlobStoreListDropsCorruptedObjects(t *testing.T) {
	f := newFakeBlobServer(t)
	store := f.store(t)

	rec := Normalize(Payload{Event: strPtr("page1_view"), SessionID: strPtr("ok")}, RequestMeta{}, time.Now())
	_, err := store.Store(context.Background(), "page1", rec)
	require.NoError(t, err)

	f.put("logs/page1/2026-08-29T09-00-00-000Z-corrupt.json", []byte("{not json"))

	records, err := store.List(context.Background(), "page1", 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "page1_view", *records[0].Event)
}
