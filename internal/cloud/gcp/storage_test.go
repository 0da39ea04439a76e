package gcp

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"github.com/andywolf/triagebot/internal/blob"
)

// fakeGCS implements just enough of the JSON API for simple media uploads
// and alt=media downloads.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string]string // bucket/name -> content
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/o"):
		bucket := bucketFromPath(path)
		name := r.URL.Query().Get("name")
		content, err := mediaContent(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[bucket+"/"+name] = content
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"`+name+`","bucket":"`+bucket+`"}`)

	case r.Method == http.MethodGet && strings.Contains(path, "/o/"):
		bucket := bucketFromPath(path)
		name := path[strings.Index(path, "/o/")+3:]
		content, ok := f.objects[bucket+"/"+name]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"No such object"}}`)
			return
		}
		_, _ = io.WriteString(w, content)

	default:
		http.Error(w, "unexpected request "+r.Method+" "+path, http.StatusBadRequest)
	}
}

func bucketFromPath(path string) string {
	after := path[strings.Index(path, "/b/")+3:]
	bucket, _, _ := strings.Cut(after, "/")
	return bucket
}

// mediaContent returns the object bytes of a multipart or media upload.
func mediaContent(r *http.Request) (string, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(r.Body)
		return string(data), err
	}
	reader := multipart.NewReader(r.Body, params["boundary"])
	var last string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return "", err
		}
		data, _ := io.ReadAll(part)
		last = string(data)
	}
}

func newTestStorageStore(t *testing.T) *StorageStore {
	t.Helper()
	server := httptest.NewServer(&fakeGCS{objects: make(map[string]string)})
	t.Cleanup(server.Close)

	store, err := NewStorageStore(context.Background(), "",
		option.WithEndpoint(server.URL+"/storage/v1/"),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewStorageStore: %v", err)
	}
	return store
}

func TestStorageStore_RoundTrip(t *testing.T) {
	store := newTestStorageStore(t)
	ctx := context.Background()

	if err := store.UploadText(ctx, "latest-stable", "1.90.2", "latest-releases"); err != nil {
		t.Fatalf("UploadText: %v", err)
	}

	got, err := store.DownloadText(ctx, "latest-stable", "latest-releases")
	if err != nil {
		t.Fatalf("DownloadText: %v", err)
	}
	if got != "1.90.2" {
		t.Errorf("DownloadText = %q, want 1.90.2", got)
	}
}

func TestStorageStore_NotFound(t *testing.T) {
	store := newTestStorageStore(t)

	_, err := store.DownloadText(context.Background(), "latest-insider", "latest-releases")
	if !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("DownloadText error = %v, want blob.ErrNotFound", err)
	}
}
