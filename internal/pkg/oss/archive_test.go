package oss

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/madrasah_billing_server/config"
)

// fakeOSS 以 path-style 接收 PUT/GET（endpoint 为 IP 时 SDK 使用 path-style）
type fakeOSS struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeOSS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestArchive(t *testing.T, prefix string) (*Archive, *fakeOSS) {
	t.Helper()

	fake := &fakeOSS{objects: make(map[string][]byte)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	a, err := NewArchive(&config.ArchiveConfig{
		Endpoint:        server.URL,
		AccessKeyID:     "ak",
		AccessKeySecret: "sk",
		BucketName:      "billing-archive",
		Prefix:          prefix,
	})
	require.NoError(t, err)
	return a, fake
}

func TestArchive_ObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)

	t.Run("with prefix", func(t *testing.T) {
		a, _ := newTestArchive(t, "/prod/")
		assert.Equal(t, "prod/callbacks/gateway_a/2026/03/09/abc.json", a.ObjectKey("gateway_a", "abc", at))
	})

	t.Run("without prefix", func(t *testing.T) {
		a, _ := newTestArchive(t, "")
		assert.Equal(t, "callbacks/gateway_b/2026/03/09/abc.json", a.ObjectKey("gateway_b", "abc", at))
	})
}

func TestArchive_StoreAndFetch(t *testing.T) {
	a, fake := newTestArchive(t, "prod")
	payload := []byte(`{"order_id":"order_1"}`)

	key, err := a.Store("gateway_a", "deadbeef", payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "prod/callbacks/gateway_a/"))
	assert.True(t, strings.HasSuffix(key, "/deadbeef.json"))

	fake.mu.Lock()
	stored, ok := fake.objects["/billing-archive/"+key]
	fake.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, payload, stored)

	fetched, err := a.Fetch(key)
	require.NoError(t, err)
	assert.Equal(t, payload, fetched)
}

func TestArchive_GetSignedURL(t *testing.T) {
	a, _ := newTestArchive(t, "")

	url, err := a.GetSignedURL("callbacks/gateway_a/2026/03/09/abc.json", 60)
	require.NoError(t, err)
	assert.Contains(t, url, "billing-archive")
	assert.Contains(t, url, "Signature=")
}
