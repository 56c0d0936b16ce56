package opensearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

func newTestIndexer(t *testing.T, serverURL string) *Indexer {
	return NewIndexer(newTestClient(t, serverURL), IndexerConfig{}, logging.NewNopLogger())
}

func TestEnsureIndex_Creates(t *testing.T) {
	var (
		mu      sync.Mutex
		created bool
		body    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			mu.Lock()
			defer mu.Unlock()
			created = r.URL.Path == "/reviews"
			body, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"acknowledged": true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	err := newTestIndexer(t, server.URL).EnsureIndex(context.Background(), "reviews", ReviewIndexMapping())
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, created)
	assert.Contains(t, string(body), `"url_fingerprint":{"type":"keyword"}`)
}

func TestEnsureIndex_AlreadyExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := newTestIndexer(t, server.URL).EnsureIndex(context.Background(), "reviews", ReviewIndexMapping())
	assert.NoError(t, err)
}

func TestEnsureIndex_CreateFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"type": "security_exception", "reason": "no permissions"}}`))
	}))
	defer server.Close()

	err := newTestIndexer(t, server.URL).EnsureIndex(context.Background(), "reviews", ReviewIndexMapping())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearch))
	assert.Contains(t, err.Error(), "no permissions")
}

func TestBulkIndex_Success(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "_bulk") {
			mu.Lock()
			defer mu.Unlock()
			data, _ := io.ReadAll(r.Body)
			sc := bufio.NewScanner(bytes.NewReader(data))
			for sc.Scan() {
				lines = append(lines, sc.Text())
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{
				"took": 30,
				"errors": false,
				"items": [
					{"index": {"_index": "reviews", "_id": "1", "status": 201}},
					{"index": {"_index": "reviews", "_id": "2", "status": 201}}
				]
			}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	docs := []BulkDocument{
		{ID: "1", Source: map[string]string{"text": "fine"}},
		{ID: "2", Source: map[string]string{"text": "rash"}},
	}
	result, err := newTestIndexer(t, server.URL).BulkIndex(context.Background(), "reviews", docs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 4)
	var action bulkAction
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &action))
	assert.Equal(t, "reviews", action.Index.Index)
	assert.Equal(t, "1", action.Index.ID)
	assert.JSONEq(t, `{"text":"fine"}`, lines[1])
}

func TestBulkIndex_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"took": 30,
			"errors": true,
			"items": [
				{"index": {"_index": "reviews", "_id": "1", "status": 201}},
				{"index": {"_index": "reviews", "_id": "2", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "failed"}}}
			]
		}`))
	}))
	defer server.Close()

	docs := []BulkDocument{{ID: "1", Source: map[string]int{"rating": 5}}, {ID: "2", Source: map[string]string{"rating": "x"}}}
	result, err := newTestIndexer(t, server.URL).BulkIndex(context.Background(), "reviews", docs)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "2", result.Errors[0].DocID)
	assert.Equal(t, "mapper_parsing_exception", result.Errors[0].ErrorType)
}

func TestBulkIndex_Empty(t *testing.T) {
	result, err := newTestIndexer(t, "http://127.0.0.1:1").BulkIndex(context.Background(), "reviews", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded)
}

func TestBulkIndex_Batches(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"errors": false, "items": [{"index": {"_id": "x", "status": 201}}]}`))
	}))
	defer server.Close()

	idx := NewIndexer(newTestClient(t, server.URL), IndexerConfig{BulkBatchSize: 1}, logging.NewNopLogger())
	docs := []BulkDocument{{ID: "1", Source: "a"}, {ID: "2", Source: "b"}, {ID: "3", Source: "c"}}
	result, err := idx.BulkIndex(context.Background(), "reviews", docs)
	require.NoError(t, err)
	assert.Equal(t, int32(3), requests.Load())
	assert.Equal(t, 3, result.Succeeded)
}
